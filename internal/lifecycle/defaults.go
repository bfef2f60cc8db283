package lifecycle

import "github.com/linnemanlabs/pulse/internal/signal"

// Owner roles used by the default table.
const (
	ownerFieldWorker = "Field Worker"
	ownerTeamLead    = "Team Lead"
	ownerFinance     = "Finance Admin"
	ownerProcurement = "Procurement Officer"
	ownerFacilities  = "Facilities"
)

var defaultTable = mustTable(defaultConfigs())

// DefaultTable returns the built-in stage table.
func DefaultTable() *Table {
	return defaultTable
}

func hours(h int) *int { return &h }

func mustTable(configs map[signal.Type]StageConfig) *Table {
	t, err := NewTable(configs)
	if err != nil {
		panic(err)
	}
	return t
}

// defaultConfigs builds a fresh copy of the built-in configuration on every call.
func defaultConfigs() map[signal.Type]StageConfig {
	return map[signal.Type]StageConfig{
		signal.TypePurchase: {
			Stages: []string{"submitted", "approved", "ordered", "delivered", "invoiced", "closed"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:          "submitted",
				signal.StatusNeedsClarity:     "submitted",
				signal.StatusApproved:         "approved",
				signal.StatusAutoApproved:     "approved",
				signal.StatusInMotion:         "ordered",
				signal.StatusAwaitingSupplier: "ordered",
				signal.StatusDelivered:        "delivered",
				signal.StatusClosed:           "closed",
				signal.StatusRejected:         "closed",
			},
			DefaultOwners: map[string]string{
				"submitted": ownerTeamLead,
				"approved":  ownerProcurement,
				"ordered":   ownerProcurement,
				"delivered": ownerFieldWorker,
				"invoiced":  ownerFinance,
				"closed":    ownerFinance,
			},
			DefaultSLAHours: hours(48),
		},
		signal.TypeMaintenance: {
			Stages: []string{"reported", "assessed", "scheduled", "in-repair", "completed"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:          "reported",
				signal.StatusNeedsClarity:     "reported",
				signal.StatusApproved:         "assessed",
				signal.StatusAutoApproved:     "assessed",
				signal.StatusAwaitingSupplier: "scheduled",
				signal.StatusInMotion:         "in-repair",
				signal.StatusDelivered:        "completed",
				signal.StatusClosed:           "completed",
			},
			DefaultOwners: map[string]string{
				"reported":  ownerTeamLead,
				"assessed":  ownerTeamLead,
				"scheduled": ownerFacilities,
				"in-repair": ownerFacilities,
				"completed": ownerTeamLead,
			},
			DefaultSLAHours: hours(72),
		},
		signal.TypeIncident: {
			Stages: []string{"reported", "reviewed", "resolved", "closed"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:      "reported",
				signal.StatusNeedsClarity: "reviewed",
				signal.StatusApproved:     "reviewed",
				signal.StatusInMotion:     "reviewed",
				signal.StatusDelivered:    "resolved",
				signal.StatusClosed:       "closed",
				signal.StatusRejected:     "closed",
			},
			DefaultOwners: map[string]string{
				"reported": ownerTeamLead,
				"reviewed": ownerTeamLead,
				"resolved": ownerTeamLead,
				"closed":   ownerTeamLead,
			},
			DefaultSLAHours: hours(24),
		},
		signal.TypeShiftHandover: {
			Stages: []string{"logged", "acknowledged"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:  "logged",
				signal.StatusApproved: "acknowledged",
				signal.StatusClosed:   "acknowledged",
			},
			DefaultOwners: map[string]string{
				"logged":       ownerTeamLead,
				"acknowledged": ownerFieldWorker,
			},
			DefaultSLAHours: hours(12),
		},
		signal.TypeCompliance: {
			Stages: []string{"flagged", "reviewed", "remediated", "closed"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:      "flagged",
				signal.StatusNeedsClarity: "reviewed",
				signal.StatusApproved:     "reviewed",
				signal.StatusInMotion:     "remediated",
				signal.StatusDelivered:    "remediated",
				signal.StatusClosed:       "closed",
				signal.StatusRejected:     "closed",
			},
			DefaultOwners: map[string]string{
				"flagged":    ownerFinance,
				"reviewed":   ownerFinance,
				"remediated": ownerTeamLead,
				"closed":     ownerFinance,
			},
			DefaultSLAHours: hours(24),
		},
		signal.TypeEvent: {
			Stages: []string{"requested", "approved", "booked", "held", "closed"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:          "requested",
				signal.StatusNeedsClarity:     "requested",
				signal.StatusApproved:         "approved",
				signal.StatusAutoApproved:     "approved",
				signal.StatusAwaitingSupplier: "booked",
				signal.StatusInMotion:         "booked",
				signal.StatusDelivered:        "held",
				signal.StatusClosed:           "closed",
				signal.StatusRejected:         "closed",
			},
			DefaultOwners: map[string]string{
				"requested": ownerTeamLead,
				"approved":  ownerFinance,
				"booked":    ownerProcurement,
				"held":      ownerTeamLead,
				"closed":    ownerFinance,
			},
			DefaultSLAHours: hours(168),
		},
		signal.TypeResource: {
			Stages: []string{"requested", "approved", "allocated", "returned"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:          "requested",
				signal.StatusNeedsClarity:     "requested",
				signal.StatusApproved:         "approved",
				signal.StatusAutoApproved:     "approved",
				signal.StatusAwaitingSupplier: "approved",
				signal.StatusInMotion:         "allocated",
				signal.StatusDelivered:        "allocated",
				signal.StatusClosed:           "returned",
			},
			DefaultOwners: map[string]string{
				"requested": ownerTeamLead,
				"approved":  ownerProcurement,
				"allocated": ownerFieldWorker,
				"returned":  ownerTeamLead,
			},
			DefaultSLAHours: hours(72),
		},
		// general carries no SLA
		signal.TypeGeneral: {
			Stages: []string{"submitted", "in-progress", "done"},
			StatusToStage: map[signal.Status]string{
				signal.StatusPending:          "submitted",
				signal.StatusNeedsClarity:     "submitted",
				signal.StatusApproved:         "in-progress",
				signal.StatusAutoApproved:     "in-progress",
				signal.StatusInMotion:         "in-progress",
				signal.StatusAwaitingSupplier: "in-progress",
				signal.StatusDelivered:        "done",
				signal.StatusClosed:           "done",
				signal.StatusRejected:         "done",
			},
			DefaultOwners: map[string]string{
				"submitted":   ownerTeamLead,
				"in-progress": ownerTeamLead,
			},
		},
	}
}
