package server

type RequirementRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

type ScorecardRequest struct {
	Quality       float64 `json:"quality" minimum:"0" maximum:"5"`
	Communication float64 `json:"communication" minimum:"0" maximum:"5"`
	Timeliness    float64 `json:"timeliness" minimum:"0" maximum:"5"`
	Comment       string  `json:"comment,omitempty"`
}

type CreateOrderRequest struct {
	ID           string               `json:"id,omitempty"`
	VendorName   string               `json:"vendor_name"`
	ServiceName  string               `json:"service_name"`
	Status       string               `json:"status,omitempty"`
	Amount       float64              `json:"amount,omitempty"`
	Currency     string               `json:"currency,omitempty"`
	KickoffAt    string               `json:"kickoff_at,omitempty"`
	DueAt        string               `json:"due_at,omitempty"`
	Requirements []RequirementRequest `json:"requirements,omitempty"`
	Scorecard    *ScorecardRequest    `json:"scorecard,omitempty"`
}

type UpdateOrderRequest struct {
	Status          *string  `json:"status,omitempty"`
	ProgressPercent *int     `json:"progress_percent,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	DueAt           *string  `json:"due_at,omitempty"`
}

type EscrowRequest struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type MessageRequest struct {
	Body string `json:"body"`
}

type ActivityRequest struct {
	Kind string `json:"kind"`
	Note string `json:"note,omitempty"`
}

type ResolveEscalationRequest struct {
	Resolution string `json:"resolution,omitempty"`
}

type CreateProjectRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

type UpdateProjectRequest struct {
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateWorkspaceSummaryRequest struct {
	Status          *string `json:"status,omitempty"`
	ProgressPercent *int    `json:"progress_percent,omitempty"`
	RiskLevel       *string `json:"risk_level,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type IntegrationUpdateRequest struct {
	Status     string `json:"status,omitempty"`
	ConfigJSON string `json:"config_json,omitempty"`
}

type CreateApplicationRequest struct {
	ID            string `json:"id,omitempty"`
	CandidateName string `json:"candidate_name"`
	RoleTitle     string `json:"role_title"`
	Status        string `json:"status,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type UpdateApplicationRequest struct {
	Status *string `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}
