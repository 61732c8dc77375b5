package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Core Enums and Types

// Role represents the privilege level of an authenticated participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleSuperuser Role = "superuser"
)

// SubtypeCall encodes which of the two candidate reference alignments scored
// better for a submission. It is NOT a subtype name; resolving it to a
// displayable subtype requires the sample's intended subtype (see subtype.go).
type SubtypeCall string

const (
	SubtypeOriginal    SubtypeCall = "original"
	SubtypeAlternative SubtypeCall = "alternative"
	SubtypeUnknown     SubtypeCall = "unknown"
)

// Verdict is the outcome of scoring one indicator for one participant.
type Verdict string

const (
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

const (
	// ReferenceLab is the sentinel organization name of the reference
	// laboratory. It is excluded from every peer aggregate and rendered as a
	// distinguished row.
	ReferenceLab = "9999"

	// ReferenceRowLabel is the display label of the reference lab's row in
	// role-projected views.
	ReferenceRowLabel = "Reference"

	// NotAvailable is the sentinel for missing categorical values. Numeric
	// fields use Metric instead.
	NotAvailable = "N/A"

	SubtypeA = "RSV-A"
	SubtypeB = "RSV-B"

	// GISAID reference accessions backing the two intended subtypes.
	ReferenceAccessionA = "EPI_ISL_412866"
	ReferenceAccessionB = "EPI_ISL_1653999"
)

// ParticipantContext identifies the requester of a report computation.
type ParticipantContext struct {
	Organization string `json:"organization"`
	Role         Role   `json:"role"`
}

// IsSuperuser reports whether the requester sees unfiltered data.
func (p ParticipantContext) IsSuperuser() bool {
	return p.Role == RoleSuperuser
}

// IsReferenceLab reports whether the requester is the reference laboratory.
func (p ParticipantContext) IsReferenceLab() bool {
	return p.Organization == ReferenceLab
}

// QC Metrics Models

// SampleMetrics is the atomic unit of the report: the QC measurements for one
// lab's submission of one sample. Numeric fields are Metric values so a
// missing measurement is explicit rather than a string sentinel mixed into
// numbers; categorical fields keep the "N/A" sentinel the QC files use.
type SampleMetrics struct {
	SequenceName  string      `json:"seqName"`
	Coverage      Metric      `json:"coverage"` // fraction of reference covered, [0,1]
	TotalMissing  Metric      `json:"totalMissing"`
	AmbiguousPct  Metric      `json:"ns"` // totalMissing / genomeLength * 100
	Substitutions Metric      `json:"substitutions"`
	Deletions     Metric      `json:"deletions"`
	Insertions    Metric      `json:"insertions"`
	FrameShifts   Metric      `json:"frameShifts"`
	Similarity    Metric      `json:"similarity"` // percent, unclamped
	Clade         string      `json:"clade"`
	LegacyClade   string      `json:"G_clade"`
	SubtypeCall   SubtypeCall `json:"subtype"`

	CoverageAt20x Metric `json:"coverageAt20x"` // percent of reference at >= 20X
	MeanDepth     Metric `json:"meanDepth"`
	DepthStdDev   Metric `json:"depthStdDev"`
	MedianDepth   Metric `json:"medianDepth"`
	UniformityPct Metric `json:"uniformity"`

	// Raw artifact paths collected while walking the report tree, exposed
	// for the download endpoints.
	FastaPath string `json:"-"`
	BAMPath   string `json:"-"`
	BAIPath   string `json:"-"`
}

// Scoreable reports whether the record carries usable sequence metrics.
// Unscoreable records are excluded from all numeric aggregation but still
// count toward participation tallies where the per-indicator rules say so.
func (m SampleMetrics) Scoreable() bool {
	return m.Coverage.Valid
}

// EnrichedMetrics is a SampleMetrics joined with the per-sample ground truth
// and the submission's declared sequencing platform.
type EnrichedMetrics struct {
	SampleMetrics

	IntendedSubtype string `json:"intendedSubtype"`
	// Platform is the free-text sequencing platform from the submission
	// record, possibly comma-separated, "N/A" when no submission exists.
	Platform string `json:"sequencingPlatform"`
}

// PlatformTokens splits the declared platform string into individual group
// keys. One submission contributes to every platform group it declares.
func (m EnrichedMetrics) PlatformTokens() []string {
	if m.Platform == "" {
		return []string{NotAvailable}
	}
	parts := strings.Split(m.Platform, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	if len(tokens) == 0 {
		return []string{NotAvailable}
	}
	return tokens
}

// ReportTree maps lab name -> sample name -> metrics, as read from disk.
type ReportTree map[string]map[string]SampleMetrics

// SampleIndex is the sample-centric view: sample name -> lab name -> metrics.
type SampleIndex map[string]map[string]EnrichedMetrics

// Aggregate Models

// AggregateRecord holds the peer aggregate for one sample: arithmetic means
// over all contributing labs (self and reference excluded) plus
// majority-vote categorical fields. It is derived on every request and never
// persisted.
type AggregateRecord struct {
	CoveragePct  Metric      `json:"coverage"` // percent
	AmbiguousPct Metric      `json:"ns"`
	Similarity   Metric      `json:"similarity"`
	MeanDepth    Metric      `json:"read_coverage"`
	LabCount     int         `json:"lab_count"`
	Clade        string      `json:"clade"`
	LegacyClade  string      `json:"G_clade"`
	SubtypeCall  SubtypeCall `json:"subtype"`
}

// PlatformAggregate holds the per-sequencing-platform aggregate for one
// sample. Unlike the peer aggregate there is no exclusion: every lab
// contributes to every platform group it declares.
type PlatformAggregate struct {
	Platform     string `json:"platform"`
	Label        string `json:"label"` // "{platform} ({count})"
	CoveragePct  Metric `json:"coverage"`
	AmbiguousPct Metric `json:"ns"`
	Similarity   Metric `json:"similarity"`
	MeanDepth    Metric `json:"read_coverage"`
	Count        int    `json:"count"`      // scoreable submissions, the divisor
	ReadCount    int    `json:"read_count"` // submissions with read-depth evidence
	Clade        string `json:"clade"`
	LegacyClade  string `json:"G_clade"`
}

// MarshalJSON renders a zero-count group with empty-string metrics rather
// than the "N/A" sentinel the Metric type would emit.
func (p PlatformAggregate) MarshalJSON() ([]byte, error) {
	type alias PlatformAggregate
	if p.Count > 0 {
		return json.Marshal(alias(p))
	}
	return json.Marshal(struct {
		alias
		CoveragePct  string `json:"coverage"`
		AmbiguousPct string `json:"ns"`
		Similarity   string `json:"similarity"`
		MeanDepth    string `json:"read_coverage"`
	}{alias: alias(p)})
}

// Scoring Models

// ScoreRow is one indicator scored for one sample: the requester's value
// against the intended/reference value, with the peer pass-rate.
type ScoreRow struct {
	Sample     string  `json:"sample"`
	YourResult string  `json:"your_result"`
	Expected   string  `json:"expected"` // intended result or recommended threshold
	Reference  string  `json:"reference"`
	Verdict    Verdict `json:"verdict"`
	IQR        string  `json:"iqr,omitempty"` // "{mean} ({q1}-{q3})", quality indicators only
	PassRate   string  `json:"pass_rate"`     // "{pass}/{total} ({pct}%)"
}

// Evaluation groups the scored indicators for one requester across all
// samples of a distribution.
type Evaluation struct {
	Subtyping      []ScoreRow `json:"rsv_subtyping"`
	Clade          []ScoreRow `json:"clade"`
	LegacyClade    []ScoreRow `json:"legacy_clade"`
	GenomeCoverage []ScoreRow `json:"genome_coverage"`
	AmbiguousBases []ScoreRow `json:"ns_in_sequence"`
	Similarity     []ScoreRow `json:"similarity"`
	ReadDepth      []ScoreRow `json:"read_depth"`
}

// View Models

// ParticipantRow is one rendered table row: a lab (or a synthetic "Others"
// row) with display-ready metric values.
type ParticipantRow struct {
	Participant  string `json:"participant"`
	CoveragePct  Metric `json:"coverage"`
	AmbiguousPct Metric `json:"ns"`
	Similarity   Metric `json:"similarity"`
	MeanDepth    Metric `json:"read_coverage"`
	Clade        string `json:"clade"`
	LegacyClade  string `json:"G_clade"`
	Subtype      string `json:"subtype"` // resolved display subtype
	Platform     string `json:"sequencing_type"`
}

// SampleView is the role-projected view of one sample handed to renderers.
type SampleView struct {
	Sample             string              `json:"sample"`
	IntendedSubtype    string              `json:"intendedSubtype"`
	ReferenceAccession string              `json:"referenceAccession"`
	Rows               []ParticipantRow    `json:"table"`
	PlatformAggregates []PlatformAggregate `json:"sequencing_aggregates"`
}

// DistributionReport is the complete computed report for one
// (distribution, requester) pair.
type DistributionReport struct {
	Distribution string             `json:"distribution"`
	Requester    ParticipantContext `json:"requester"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Samples      []SampleView       `json:"samples"`
	Evaluation   Evaluation         `json:"evaluation"`
}

// Participation summarizes one sample's submission coverage for the
// distribution overview endpoint.
type Participation struct {
	Participants       int    `json:"participants"`
	ReferenceAccession string `json:"reference"`
}

// Persistence Models

// Organization represents a participating laboratory.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Distribution represents one round of distributed samples.
type Distribution struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Samples   []string  `json:"samples"`
}

// Submission records that a lab uploaded data for a sample, including the
// declared sequencing platform.
type Submission struct {
	ID             int64     `json:"id"`
	Organization   string    `json:"organization"`
	Distribution   string    `json:"distribution"`
	Sample         string    `json:"sample"`
	SequencingType string    `json:"sequencing_type"`
	SubmittedAt    time.Time `json:"submission_date"`
}

// Notification is a message delivered to a participant's toolbar.
type Notification struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"user_email"`
	Message   string    `json:"message"`
	Dismissed bool      `json:"is_dismissed"`
	CreatedAt time.Time `json:"created_at"`
}

// Configuration Models

// Config represents the main application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Data     DataConfig     `mapstructure:"data"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig represents database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "sqlite"
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig represents the notification channel configuration.
type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	Channel     string        `mapstructure:"channel"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	HistorySize int           `mapstructure:"history_size"`
}

// DataConfig locates the on-disk QC artifacts.
type DataConfig struct {
	// Dir is the root under which each distribution has
	// <dir>/<distribution>/<lab>/<sample>/ with the QC pipeline outputs.
	Dir string `mapstructure:"dir"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
