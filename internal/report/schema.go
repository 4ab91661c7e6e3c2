// Package report implements the report stage worker (spec §4.3): it
// assembles the transcript from the tracks the transcription stage
// produced, prompts the LLM for a structured report keyed by meeting
// type, validates the result, and hands off to the export stage.
package report

import "github.com/ILLUVRSE/meeting-minutes/internal/pipeline"

// Action is the shared action-item shape used by general and weekly
// reports (tech reports use TechAction). Its fields are only enforced when a row is actually
// present in the slice (see the `dive` tag on the containing field).
type Action struct {
	Task     string `json:"task" validate:"required"`
	Owner    string `json:"owner" validate:"required"`
	Deadline string `json:"deadline" validate:"required"`
	Priority string `json:"priority" validate:"required,oneof=high medium low"`
}

// GeneralReport is the schema for meetingType=general. Only Summary is
// required; every other section is optional and treated as empty when
// the LLM omits it (spec §9).
type GeneralReport struct {
	Summary      string   `json:"summary" validate:"required"`
	KeyTopics    []string `json:"keyTopics"`
	Highlights   []string `json:"highlights"`
	Lowlights    []string `json:"lowlights"`
	Decisions    []string `json:"decisions"`
	Actions      []Action `json:"actions" validate:"dive"`
	Participants []string `json:"participants"`
	Duration     string   `json:"duration"`
	MeetingType  string   `json:"meetingType"`
}

// TeamKPIIndividual is one row of WeeklyReport.TeamKPI.Individuals.
type TeamKPIIndividual struct {
	Name   string `json:"name" validate:"required"`
	KPI    string `json:"kpi" validate:"required"`
	Status string `json:"status" validate:"required,oneof=on-track at-risk completed"`
}

// TeamKPI is WeeklyReport's team-level KPI block; an optional section.
type TeamKPI struct {
	Overview    string              `json:"overview"`
	Individuals []TeamKPIIndividual `json:"individuals" validate:"dive"`
}

// Risk is one row of a ProjectReview's risks.
type Risk struct {
	Impact     string `json:"impact" validate:"required,oneof=high medium low"`
	Mitigation string `json:"mitigation" validate:"required"`
}

// ProjectReview is one row of WeeklyReport.ProjectReviews.
type ProjectReview struct {
	Project    string   `json:"project" validate:"required"`
	Progress   string   `json:"progress" validate:"required"`
	FollowUps  []string `json:"followUps"`
	Highlights []string `json:"highlights"`
	Lowlights  []string `json:"lowlights"`
	Risks      []Risk   `json:"risks" validate:"dive"`
	Challenges []string `json:"challenges"`
}

// WeeklyReport is the schema for meetingType=weekly. Only Summary is
// required; every other section is optional (spec §9).
type WeeklyReport struct {
	Summary        string          `json:"summary" validate:"required"`
	TeamKPI        TeamKPI         `json:"teamKPI"`
	Announcements  []string        `json:"announcements"`
	ProjectReviews []ProjectReview `json:"projectReviews" validate:"dive"`
	Decisions      []string        `json:"decisions"`
	Actions        []Action        `json:"actions" validate:"dive"`
	Participants   []string        `json:"participants"`
	NextMeeting    string          `json:"nextMeeting"`
}

// Topic is one row of TechReport.Topics.
type Topic struct {
	Topic      string `json:"topic" validate:"required"`
	Discussion string `json:"discussion" validate:"required"`
	Conclusion string `json:"conclusion" validate:"required"`
}

// TechAction extends Action with an estimate field, per spec §4.3 step 6.
type TechAction struct {
	Task     string `json:"task" validate:"required"`
	Owner    string `json:"owner" validate:"required"`
	Deadline string `json:"deadline" validate:"required"`
	Priority string `json:"priority" validate:"required,oneof=high medium low"`
	Estimate string `json:"estimate" validate:"required"`
}

// KnowledgeBaseEntry is one row of TechReport.KnowledgeBase.
type KnowledgeBaseEntry struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// TechReport is the schema for meetingType=tech. Only Summary is
// required; every other section is optional (spec §9).
type TechReport struct {
	Summary       string               `json:"summary" validate:"required"`
	Topics        []Topic              `json:"topics" validate:"dive"`
	Highlights    []string             `json:"highlights"`
	Lowlights     []string             `json:"lowlights"`
	Actions       []TechAction         `json:"actions" validate:"dive"`
	KnowledgeBase []KnowledgeBaseEntry `json:"knowledgeBase" validate:"dive"`
	Participants  []string             `json:"participants"`
	TechStack     []string             `json:"techStack"`
}

// CustomerInfo is CustomerReport's customer identification block; an
// optional section.
type CustomerInfo struct {
	Company   string   `json:"company"`
	Attendees []string `json:"attendees"`
}

// CustomerNeed is one row of CustomerReport.CustomerNeeds.
type CustomerNeed struct {
	Need       string `json:"need" validate:"required"`
	Priority   string `json:"priority" validate:"required"`
	Background string `json:"background" validate:"required"`
}

// PainPoint is one row of CustomerReport.PainPoints.
type PainPoint struct {
	Point  string `json:"point" validate:"required"`
	Detail string `json:"detail" validate:"required"`
}

// SolutionDiscussed is one row of CustomerReport.SolutionsDiscussed.
type SolutionDiscussed struct {
	Solution         string   `json:"solution" validate:"required"`
	AWSServices      []string `json:"awsServices"`
	CustomerFeedback string   `json:"customerFeedback" validate:"required"`
}

// Commitment is one row of CustomerReport.Commitments.
type Commitment struct {
	Party      string `json:"party" validate:"required,oneof=AWS 客户"`
	Commitment string `json:"commitment" validate:"required"`
	Owner      string `json:"owner" validate:"required"`
	Deadline   string `json:"deadline" validate:"required"`
}

// NextStep is one row of CustomerReport.NextSteps.
type NextStep struct {
	Task     string `json:"task" validate:"required"`
	Owner    string `json:"owner" validate:"required"`
	Deadline string `json:"deadline" validate:"required"`
	Priority string `json:"priority" validate:"required"`
}

// CustomerReport is the schema for meetingType=customer. Only Summary
// is required; every other section is optional (spec §9).
type CustomerReport struct {
	Summary            string              `json:"summary" validate:"required"`
	CustomerInfo       CustomerInfo        `json:"customerInfo"`
	AWSAttendees       []string            `json:"awsAttendees"`
	CustomerNeeds      []CustomerNeed      `json:"customerNeeds" validate:"dive"`
	PainPoints         []PainPoint         `json:"painPoints" validate:"dive"`
	SolutionsDiscussed []SolutionDiscussed `json:"solutionsDiscussed" validate:"dive"`
	Commitments        []Commitment        `json:"commitments" validate:"dive"`
	NextSteps          []NextStep          `json:"nextSteps" validate:"dive"`
	Participants       []string            `json:"participants"`
}

// emptyForType returns a freshly allocated schema struct pointer to
// unmarshal into, selected by meetingType. Unknown types fall back to
// general, matching the report prompt builder's default.
func emptyForType(mt pipeline.MeetingType) interface{} {
	switch mt {
	case pipeline.MeetingWeekly:
		return &WeeklyReport{}
	case pipeline.MeetingTech:
		return &TechReport{}
	case pipeline.MeetingCustomer:
		return &CustomerReport{}
	default:
		return &GeneralReport{}
	}
}
