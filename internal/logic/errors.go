package logic

import "errors"

var (
	// ErrLeaderboardNotFound means the referenced leaderboard does not exist.
	ErrLeaderboardNotFound = errors.New("leaderboard not found")

	// ErrLeaderboardArchived means the leaderboard no longer accepts joins
	// or recomputes.
	ErrLeaderboardArchived = errors.New("leaderboard is archived")

	// ErrMembershipNotFound means the user is not a member of the leaderboard.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrInviteRequired means joining a restricted leaderboard was attempted
	// without an accepted invite.
	ErrInviteRequired = errors.New("an accepted invite is required to join this leaderboard")

	// ErrNotOwner means the caller attempted an owner-only operation.
	ErrNotOwner = errors.New("only the leaderboard owner may do that")

	// ErrBeatmapNotFound means a submitted score references an unknown beatmap.
	ErrBeatmapNotFound = errors.New("beatmap not found")
)
