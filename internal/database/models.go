package database

// Record statuses written by the pipeline.
const (
	StatusPosted  = "posted"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// MaxCommunities caps how many target communities an account may list.
const MaxCommunities = 15

// Account holds one enrolled account's pipeline configuration.
// The pipeline only reads accounts; mutation belongs to the ops tooling.
type Account struct {
	ID                 int64
	Name               string
	SeedKeywords       []string
	Communities        []string
	ProductDescription string
	ProductLink        string
	ProductBenefits    string
	AutoPilotEnabled   bool
	RefreshToken       string
	CreatedAt          *string
}

// PostRecord is the persisted outcome of processing one candidate for
// one account. Append-only from the pipeline's perspective.
type PostRecord struct {
	ID            int64
	AccountID     int64
	Status        string // posted, skipped, failed
	NormalizedURL string
	Title         string
	Snippet       string
	Community     string
	PostID        string
	Upvotes       int
	CommentCount  int
	ReplyText     string
	Note          string
	AutoPilot     bool
	CreatedAt     *string
}

// CommunityPolicy is the cached promotion-policy verdict for a community.
type CommunityPolicy struct {
	Community       string
	AllowsPromotion bool
	ResolvedAt      *string
}

// AccountRun records the outcome of one pipeline pass over one account.
type AccountRun struct {
	ID         int64
	AccountID  int64
	StartedAt  string
	FinishedAt *string
	Discovered int
	Approved   int
	Posted     int
	Failed     int
	Error      string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalAccounts    int
	AutoPilotEnabled int
	PostedRecords    int
	SkippedRecords   int
	FailedRecords    int
	CachedPolicies   int
	TotalRuns        int
	LastRunStarted   string
}
