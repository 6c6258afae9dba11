// Package common contains the identifier type, the typed error kernel and
// shared constants used by every Altair layer.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// ErrorTrailerName is the gRPC trailer key carrying a JSON encoded *Error.
const ErrorTrailerName = "x-altair-error"

const (
	MinEnergyCost = 1
	MaxEnergyCost = 5

	MinDailyBudget     = 1
	MaxDailyBudget     = 10
	DefaultDailyBudget = 5

	// WipLimit is the number of quests a user may have ACTIVE at once.
	WipLimit = 1

	MaxQuestTitleLength   = 200
	MaxInboxContentLength = 10000
)
