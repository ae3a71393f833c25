package model

import "time"

// -------------------- EVENT MODEL --------------------

// EventKind identifies which feed a record came from.
type EventKind string

const (
	KindPerimeter EventKind = "PERIMETER"
	KindAuth      EventKind = "AUTH"
)

// Action is the normalized outcome recorded by the source system.
type Action string

const (
	ActionAllow   Action = "ALLOW"
	ActionBlock   Action = "BLOCK"
	ActionDeny    Action = "DENY"
	ActionFailed  Action = "FAILED"
	ActionSuccess Action = "SUCCESS"
)

// NormalizedEvent is the single internal event shape both detectors consume.
// Timestamp is always a valid instant; rows that cannot provide one are
// dropped during normalization, never forwarded.
type NormalizedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	DestIP    string    `json:"dest_ip,omitempty"`
	DestPort  int       `json:"dest_port,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Action    Action    `json:"action"`
	Username  string    `json:"username,omitempty"`
	Service   string    `json:"service,omitempty"`
	Kind      EventKind `json:"kind"`
}

// -------------------- ALERT MODEL --------------------

type AlertKind string

const (
	AlertBruteForce AlertKind = "BRUTE_FORCE"
	AlertPortScan   AlertKind = "PORT_SCAN"
)

// Alert is emitted once per origin per detector pass (first-crossing policy)
// and never mutated afterwards.
type Alert struct {
	ID              string    `json:"id"`
	Kind            AlertKind `json:"kind"`
	OriginIP        string    `json:"origin_ip"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	OccurrenceCount int       `json:"occurrence_count"`

	// Evidence. Usernames/Services for brute force, Ports/Protocols for
	// port scans; the unused pair stays empty.
	Usernames []string `json:"usernames,omitempty"`
	Services  []string `json:"services,omitempty"`
	Ports     []int    `json:"ports,omitempty"`
	Protocols []string `json:"protocols,omitempty"`
}

// -------------------- GEO MODEL --------------------

// GeoRecord is created on a successful lookup (or synthesized for private
// ranges) and replaced, never updated, when it expires.
type GeoRecord struct {
	IP          string    `json:"ip"`
	Country     string    `json:"country"`
	CountryCode string    `json:"country_code"`
	Region      string    `json:"region"`
	City        string    `json:"city"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	ISP         string    `json:"isp,omitempty"`
	Org         string    `json:"org,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
	TTLExpiry   time.Time `json:"ttl_expiry"`
	IsPrivate   bool      `json:"is_private"`
}

// Expired reports whether the record's TTL has elapsed at now.
func (g *GeoRecord) Expired(now time.Time) bool {
	return !g.TTLExpiry.IsZero() && !now.Before(g.TTLExpiry)
}

// -------------------- RISK MODEL --------------------

type RiskTier string

const (
	TierHigh   RiskTier = "HIGH"
	TierMedium RiskTier = "MEDIUM"
	TierLow    RiskTier = "LOW"
)

// RiskResult is derived per origin each run and not persisted.
type RiskResult struct {
	IP              string   `json:"ip"`
	Tier            RiskTier `json:"tier"`
	Score           int      `json:"score"`
	Alerts          []Alert  `json:"alerts"`
	HighRiskCountry bool     `json:"high_risk_country"`
}

// -------------------- STATISTICS --------------------

// ResolverStats reports cache and lookup behavior for observability.
// All counters are cumulative for the resolver's lifetime.
type ResolverStats struct {
	MemoryHits      int64 `json:"memory_hits"`
	DistributedHits int64 `json:"distributed_hits"`
	Misses          int64 `json:"misses"`
	Coalesced       int64 `json:"coalesced"`
	ExternalCalls   int64 `json:"external_calls"`
	PrivateSkips    int64 `json:"private_skips"`

	Timeouts        int64 `json:"timeouts"`
	ConnectFailures int64 `json:"connect_failures"`
	HTTPErrors      int64 `json:"http_errors"`
	DecodeFailures  int64 `json:"decode_failures"`
	OtherFailures   int64 `json:"other_failures"`
}

// AnalysisStats summarizes one run.
type AnalysisStats struct {
	RunID             string        `json:"run_id"`
	PerimeterEvents   int           `json:"perimeter_events"`
	AuthEvents        int           `json:"auth_events"`
	SkippedRecords    int           `json:"skipped_records"`
	SuspectIPs        int           `json:"suspect_ips"`
	UnresolvedLookups int           `json:"unresolved_lookups"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Duration          time.Duration `json:"duration"`
}

// GeoSummary is the run-level geographic anomaly signal.
type GeoSummary struct {
	CountryCounts   map[string]int `json:"country_counts"`
	HighRiskOrigins []string       `json:"high_risk_origins"`
	// Concentration is the fraction of resolved origins whose country is in
	// the configured high-risk set.
	Concentration float64 `json:"concentration"`
}
