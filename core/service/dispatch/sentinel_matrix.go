// Package dispatch fans alert notifications out to delivery channels
// per the fixed tier policy.
package dispatch

import (
	"time"

	"sentinel_server/core/domain"
)

// notificationMatrix is the fixed tier-to-channel policy. It is
// configuration data, never mutated at runtime.
//
//	CRITICAL  push + email + sms   < 2s
//	HIGH      push + email         < 5m
//	MODERATE  daily digest only
//	STANDARD  log only
var notificationMatrix = map[domain.Tier]domain.MatrixEntry{
	domain.TierCritical: {
		Tier:     domain.TierCritical,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS},
		Urgency:  2 * time.Second,
	},
	domain.TierHigh: {
		Tier:     domain.TierHigh,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelEmail},
		Urgency:  5 * time.Minute,
	},
	domain.TierModerate: {
		Tier:     domain.TierModerate,
		Channels: []domain.Channel{domain.ChannelDigest},
		Urgency:  24 * time.Hour,
	},
	domain.TierStandard: {
		Tier:     domain.TierStandard,
		Channels: []domain.Channel{domain.ChannelLog},
	},
}

// MatrixFor returns the policy entry for a tier. The zero entry (no
// channels) is returned for NONE or unknown tiers.
func MatrixFor(tier domain.Tier) domain.MatrixEntry {
	return notificationMatrix[tier]
}

// escalationMatrix maps a tier to the extra channels added when an
// alert stays unacknowledged past its escalation window.
var escalationMatrix = map[domain.Tier][]domain.Channel{
	// CRITICAL already uses every immediate channel; escalation
	// re-sends through all of them.
	domain.TierCritical: {domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS},
	// HIGH escalates by adding SMS.
	domain.TierHigh: {domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS},
	// MODERATE escalates from digest-only to an immediate push.
	domain.TierModerate: {domain.ChannelPush},
}

// EscalationChannelsFor returns the channel set used when re-notifying
// an unacknowledged alert.
func EscalationChannelsFor(tier domain.Tier) []domain.Channel {
	return escalationMatrix[tier]
}
