package domain

import "time"

// CategoryUnclassified is the sentinel category a provider returns when it
// cannot produce a valid classification. It is never a member of the
// configured category set.
const CategoryUnclassified = "Unclassified"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	// TicketStatusNew marks tickets awaiting their first batch pass.
	TicketStatusNew TicketStatus = "New"
	// TicketStatusPending marks interactively submitted tickets whose
	// classification is queued but not yet run.
	TicketStatusPending TicketStatus = "Pending"

	TicketStatusClassified        TicketStatus = "Classified"
	TicketStatusClassifiedByCache TicketStatus = "Classified_By_Cache"
	TicketStatusClassifiedByAI    TicketStatus = "Classified_By_AI"
	TicketStatusHumanCorrected    TicketStatus = "Human_Corrected"
	TicketStatusFailedNoAI        TicketStatus = "Failed_No_AI"
	TicketStatusFailedProcessing  TicketStatus = "Failed_Processing"
)

// TicketUrgency enumerates reporter-supplied urgency.
type TicketUrgency string

const (
	TicketUrgencyLow      TicketUrgency = "Low"
	TicketUrgencyMedium   TicketUrgency = "Medium"
	TicketUrgencyHigh     TicketUrgency = "High"
	TicketUrgencyCritical TicketUrgency = "Critical"
)

// Ticket is the aggregate for support requests flowing through triage.
type Ticket struct {
	ID          string
	UserID      string
	Description string
	Urgency     TicketUrgency
	// ContentHash is the fingerprint of the normalized description,
	// computed on the first processing pass.
	ContentHash *string
	Category    *string
	Status      TicketStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClassificationSource identifies which stage of the pipeline produced a
// ticket's category.
type ClassificationSource string

const (
	SourceExactCacheHit    ClassificationSource = "exact_cache_hit"
	SourceSemanticCacheHit ClassificationSource = "semantic_cache_hit"
	SourceModelGenerated   ClassificationSource = "model_generated"
	SourceHumanCorrected   ClassificationSource = "human_corrected"
	SourceFailed           ClassificationSource = "failed"
)

// ClassificationResult is the outcome of one processing pass.
type ClassificationResult struct {
	Category string
	Source   ClassificationSource
}

// CacheHit reports whether the result came from either cache layer.
func (r ClassificationResult) CacheHit() bool {
	return r.Source == SourceExactCacheHit || r.Source == SourceSemanticCacheHit
}

// StatusFor maps a classification source to the ticket status it implies.
// Batch runs collapse every successful path to Classified; interactive runs
// keep the per-source statuses so pollers can see how the category was
// produced.
func StatusFor(source ClassificationSource, interactive bool) TicketStatus {
	if !interactive {
		if source == SourceFailed {
			return TicketStatusFailedNoAI
		}
		return TicketStatusClassified
	}
	switch source {
	case SourceExactCacheHit, SourceSemanticCacheHit:
		return TicketStatusClassifiedByCache
	case SourceModelGenerated:
		return TicketStatusClassifiedByAI
	case SourceHumanCorrected:
		return TicketStatusHumanCorrected
	default:
		return TicketStatusFailedNoAI
	}
}

// Terminal reports whether a status ends the current processing round.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusNew, TicketStatusPending:
		return false
	default:
		return true
	}
}
