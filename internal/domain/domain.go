package domain

type GigOrder struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	VendorName      string  `json:"vendor_name"`
	ServiceName     string  `json:"service_name"`
	Status          string  `json:"status" enum:"pending,kickoff,in_delivery,in_revision,completed,closed,cancelled,archived"`
	ProgressPercent int     `json:"progress_percent"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	KickoffAt       *string `json:"kickoff_at,omitempty" format:"date-time"`
	DueAt           *string `json:"due_at,omitempty" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

// ClosedOrderStatuses are the terminal statuses after which an order no
// longer accrues SLA breaches.
var ClosedOrderStatuses = []string{"completed", "closed", "cancelled", "archived"}

func OrderStatusClosed(status string) bool {
	for _, s := range ClosedOrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type OrderRequirement struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	Question  string  `json:"question"`
	Answer    *string `json:"answer,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type OrderScorecard struct {
	OrderID       string  `json:"order_id"`
	Quality       float64 `json:"quality"`
	Communication float64 `json:"communication"`
	Timeliness    float64 `json:"timeliness"`
	Comment       string  `json:"comment,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type OrderMessage struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EscrowCheckpoint struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"order_id"`
	Label      string  `json:"label"`
	Amount     float64 `json:"amount"`
	Status     string  `json:"status" enum:"held,released"`
	ReleasedAt *string `json:"released_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type OrderActivity struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Kind      string `json:"kind"`
	Note      string `json:"note,omitempty"`
	ActorID   string `json:"actor_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type OrderEscalation struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status" enum:"queued,notified,resolved"`
	Severity       string  `json:"severity" enum:"warning,critical"`
	Message        string  `json:"message"`
	HoursOverdue   int     `json:"hours_overdue"`
	DueAt          *string `json:"due_at,omitempty" format:"date-time"`
	DetectedAt     string  `json:"detected_at" format:"date-time"`
	LastDetectedAt string  `json:"last_detected_at" format:"date-time"`
	EscalatedAt    *string `json:"escalated_at,omitempty" format:"date-time"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedByID   *string `json:"resolved_by_id,omitempty"`
	Resolution     *string `json:"resolution,omitempty"`
	SupportCaseID  *string `json:"support_case_id,omitempty"`
}

func (e OrderEscalation) Open() bool { return e.ResolvedAt == nil }

type Project struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"draft,active,paused,completed,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ProjectWorkspace struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Status          string `json:"status" enum:"forming,active,at_risk,closing,closed"`
	ProgressPercent int    `json:"progress_percent"`
	RiskLevel       string `json:"risk_level" enum:"low,medium,high"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type ProjectIntegration struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Provider   string `json:"provider"`
	Status     string `json:"status" enum:"connected,disconnected,error"`
	ConfigJSON string `json:"config_json,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

// DefaultIntegrationProviders are seeded when a workspace is first created.
var DefaultIntegrationProviders = []string{"slack", "github", "google_drive"}

// WorkspaceRecord is one row of a workspace child table. Fields holds the
// entity-specific columns keyed by column name.
type WorkspaceRecord struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Fields      map[string]any `json:"fields" jsonschema:"type=object,additionalProperties=true"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
}

type JobApplication struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	CandidateName string `json:"candidate_name"`
	RoleTitle     string `json:"role_title"`
	Status        string `json:"status" enum:"submitted,screening,interview,offer,hired,rejected"`
	Notes         string `json:"notes,omitempty"`
	AppliedAt     string `json:"applied_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type AuditEntry struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id"`
	Action       string `json:"action"`
	ActorID      string `json:"actor_id"`
	OccurredAt   string `json:"occurred_at" format:"date-time"`
	MetadataJSON string `json:"metadata_json,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
