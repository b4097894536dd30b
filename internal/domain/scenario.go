package domain

import "time"

// MessageRole enumerates a scenario step's role.
type MessageRole string

const (
	RoleLifecycle MessageRole = "lifecycle"
	RoleAdmission MessageRole = "admission"
	RoleTransfer  MessageRole = "transfer"
	RoleDischarge MessageRole = "discharge"
	RoleUpdate    MessageRole = "update"
)

// Protocol enumerates the wire protocols a template may target.
type Protocol string

const (
	ProtocolHL7v2 Protocol = "HL7v2"
	ProtocolFHIR  Protocol = "FHIR"
)

// TimeAnchorMode enumerates the three time-shifting anchor modes of
// the design.
type TimeAnchorMode string

const (
	AnchorSliding TimeAnchorMode = "sliding"
	AnchorFixed   TimeAnchorMode = "fixed"
	AnchorNone    TimeAnchorMode = "none"
)

// TimeConfig configures replay time-shifting for a template.
type TimeConfig struct {
	AnchorMode         TimeAnchorMode
	SlidingOffsetDays  int
	FixedStart         time.Time
	PreserveIntervals  bool
	JitterMinMinutes   int
	JitterMaxMinutes   int
}

// ScenarioTemplateStep is one abstract event in a template.
type ScenarioTemplateStep struct {
	ID                  string
	OrderIndex          int
	SemanticEventCode   string
	Trigger             string
	Narrative           string
	Role                MessageRole
	DelayFromPrevious   time.Duration
	SnapshotAt          time.Time // original wall-clock time, used by AnchorNone
	PayloadSnapshot     StepPayload
	DefaultProtocol     Protocol
}

// StepPayload is the opaque-plus-structured-hints payload carried by a
// template step: the materializer composes the wire message from these
// hints rather than from textual interpolation.
type StepPayload struct {
	MovementType string
	ServiceCode  string
	MedicalUF    FunctionalUnit
	CareUF       FunctionalUnit
	Nature       Nature
	RawSnapshot  string // opaque free-text capture, informational only
}

// ScenarioTemplate is an ordered, context-free semantic event sequence.
type ScenarioTemplate struct {
	ID          string
	Key         string // unique
	Name        string
	Description string
	Category    string
	Tags        []string
	Protocols   []Protocol
	TimeConfig  TimeConfig
	Steps       []ScenarioTemplateStep
	CreatedAt   time.Time
}

// StepStatus enumerates a run step's outcome.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
)

// RunStatus enumerates a scenario run's aggregate outcome.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// RunStepResult records one executed step's outcome within a run.
type RunStepResult struct {
	StepOrderIndex int
	Status         StepStatus
	ErrorKind      string
	Message        string
	SentAt         time.Time
	ControlID      string
}

// ScenarioRun is one execution instance of a template against an endpoint.
type ScenarioRun struct {
	ID                  string
	TemplateKey         string
	EndpointID          string
	Protocol            Protocol
	JuridicalEntityID   string
	IPPPrefixOverride   string
	NDAPrefixOverride   string
	GeneratedIPP        string
	GeneratedNDA        string
	GeneratedVN         string
	StartedAt           time.Time
	FinishedAt          *time.Time
	StepResults         []RunStepResult
	AggregateStatus     RunStatus
	DryRun              bool
	StopOnError         bool
	Cancelled           bool
}
