package domain

import "time"

// Core domain models used internally. Wire shapes for the HTTP API live in the
// http adapter; keep these decoupled where helpful.

type Category string

const (
    CategoryCourse   Category = "course"
    CategoryEbook    Category = "ebook"
    CategorySoftware Category = "software"
    CategoryTemplate Category = "template"
    CategoryAudio    Category = "audio"
    CategoryVideo    Category = "video"
    CategoryFont     Category = "font"
    CategoryGame     Category = "game"
)

// Platform is where a hit lives. PlatformWeb is the catch-all.
type Platform string

const (
    PlatformWeb         Platform = "web"
    PlatformTelegram    Platform = "telegram"
    PlatformDiscord     Platform = "discord"
    PlatformReddit      Platform = "reddit"
    PlatformTorrent     Platform = "torrent"
    PlatformCyberlocker Platform = "cyberlocker"
    PlatformForum       Platform = "forum"
    PlatformCode        Platform = "code"
    PlatformSocial      Platform = "social"
)

type Product struct {
    ID           string
    Name         string
    Brand        string
    Category     Category
    CanonicalURL string
    Price        float64

    Keywords          []string
    NegativeKeywords  []string
    AlternateNames    []string
    UniqueIdentifiers []string

    WhitelistDomains []string
    WhitelistURLs    []string

    // Signals is optional and untrusted; a zero value means none were supplied.
    Signals AISignals
}

// AISignals is the enrichment bundle produced by the AI extraction service.
// Every field may be empty.
type AISignals struct {
    UniquePhrases         []string
    BrandIdentifiers      []string
    CopyrightedTerms      []string
    PlatformSearchTerms   map[Platform][]string
    AutoAlternateNames    []string
    AutoUniqueIdentifiers []string
    Untrusted             bool
}

func (s AISignals) Empty() bool {
    return len(s.UniquePhrases) == 0 && len(s.BrandIdentifiers) == 0 &&
        len(s.CopyrightedTerms) == 0 && len(s.PlatformSearchTerms) == 0 &&
        len(s.AutoAlternateNames) == 0 && len(s.AutoUniqueIdentifiers) == 0
}

// LearnedSignals come from prior verified detections of the same product.
type LearnedSignals struct {
    Keywords []string
}

type ScanProfile struct {
    Category        Category
    PiracyTerms     []string
    FileExtensions  []string
    DedicatedSites  []string
    LegitimateSites []string
    BoostTerms      []string
    PenaltyTerms    []string
    PlatformWeights map[Platform]float64
}

type Tier int

const (
    TierBroad    Tier = 1
    TierTargeted Tier = 2
    TierDeepDive Tier = 3
)

type GeneratedQuery struct {
    Text          string `json:"query"`
    Tier          Tier   `json:"tier"`
    ResultCount   int    `json:"num"`
    CategoryLabel string `json:"label"`
}

// SearchHit is one organic result. Tier, Query and Source record provenance and
// are filled in by whoever issued the query.
type SearchHit struct {
    Title    string `json:"title"`
    Link     string `json:"link"`
    Snippet  string `json:"snippet"`
    Position int    `json:"position"`

    Tier   Tier   `json:"tier,omitempty"`
    Query  string `json:"query,omitempty"`
    Source string `json:"source,omitempty"`
}

type RiskLevel string

const (
    RiskLow      RiskLevel = "low"
    RiskMedium   RiskLevel = "medium"
    RiskHigh     RiskLevel = "high"
    RiskCritical RiskLevel = "critical"
)

type ScoredResult struct {
    Hit              SearchHit `json:"hit"`
    Confidence       int       `json:"confidence"`
    RiskLevel        RiskLevel `json:"risk_level"`
    Platform         Platform  `json:"platform"`
    InfringementType string    `json:"infringement_type"`
    AudienceEstimate int       `json:"audience_estimate"`
    RevenueLoss      float64   `json:"revenue_loss_estimate"`
    IsFalsePositive  bool      `json:"is_false_positive"`
    Reasons          []string  `json:"reasons"`
}

type InfringementStatus string

const (
    StatusPendingVerification InfringementStatus = "pending_verification"
    StatusActive              InfringementStatus = "active"
    StatusRemoved             InfringementStatus = "removed"
)

type InfringementRecord struct {
    ID          string
    ProductID   string
    URL         string
    URLHash     string
    Platform    Platform
    Type        string
    Confidence  int
    RiskLevel   RiskLevel
    Priority    int
    Status      InfringementStatus
    FirstSeenAt time.Time
    LastSeenAt  time.Time
    SeenCount   int
    Evidence    ScoredResult
}

// KnownInfringement is the slice of an existing record a scan needs for delta
// detection.
type KnownInfringement struct {
    ID      string
    URLHash string
    Status  InfringementStatus
}

type StatusTransition struct {
    InfringementID string
    From           InfringementStatus
    To             InfringementStatus
    Reason         string
    At             time.Time
}

type RunStatus string

const (
    RunQueued    RunStatus = "queued"
    RunRunning   RunStatus = "running"
    RunCompleted RunStatus = "completed"
    RunFailed    RunStatus = "failed"
)

type ScanRun struct {
    ID         string
    ProductID  string
    Status     RunStatus
    StartedAt  *time.Time
    FinishedAt *time.Time
    Progress   RunProgress
}
