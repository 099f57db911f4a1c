package notify

import (
	"fmt"
	"strings"
)

type Lang string

const (
	LangEN Lang = "en"
	LangDE Lang = "de"
)

// Message keys.
const (
	MsgAbsenceApproved  = "absence_approved"
	MsgAbsenceRejected  = "absence_rejected"
	MsgProbationHalfway = "probation_halfway"
	MsgProbation30Days  = "probation_30_days"
)

type template struct {
	Title   string
	Message string
}

var templates = map[Lang]map[string]template{
	LangEN: {
		MsgAbsenceApproved:  {"Absence approved", "Your %s starting %s has been approved."},
		MsgAbsenceRejected:  {"Absence rejected", "Your %s starting %s has been rejected. Reason: %s"},
		MsgProbationHalfway: {"Probation halfway", "%s has reached the halfway point of the probation period (ends %s)."},
		MsgProbation30Days:  {"Probation ends in 30 days", "The probation period of %s ends in 30 days (%s)."},
	},
	LangDE: {
		MsgAbsenceApproved:  {"Abwesenheit genehmigt", "Ihr(e) %s ab %s wurde genehmigt."},
		MsgAbsenceRejected:  {"Abwesenheit abgelehnt", "Ihr(e) %s ab %s wurde abgelehnt. Grund: %s"},
		MsgProbationHalfway: {"Probezeit zur Hälfte vorbei", "%s hat die Hälfte der Probezeit erreicht (Ende: %s)."},
		MsgProbation30Days:  {"Probezeit endet in 30 Tagen", "Die Probezeit von %s endet in 30 Tagen (%s)."},
	},
}

var labels = map[Lang]map[string]string{
	LangEN: {
		"vacation":           "vacation",
		"sick":               "sick leave",
		"sick_child":         "sick leave (child)",
		"work_remote_abroad": "remote work abroad",
		"business_trip":      "business trip",
	},
	LangDE: {
		"vacation":           "Urlaub",
		"sick":               "Krankmeldung",
		"sick_child":         "Kinderkrankentage",
		"work_remote_abroad": "Remote-Arbeit im Ausland",
		"business_trip":      "Dienstreise",
	},
}

// Catalog renders localized notification texts.
type Catalog struct {
	lang Lang
}

// NewCatalog falls back to English for unknown languages.
func NewCatalog(lang Lang) *Catalog {
	if _, ok := templates[Lang(strings.ToLower(string(lang)))]; !ok {
		lang = LangEN
	}
	return &Catalog{lang: Lang(strings.ToLower(string(lang)))}
}

func (c *Catalog) Lang() Lang { return c.lang }

// Render returns title and message for key.
func (c *Catalog) Render(key string, args ...any) (string, string) {
	t, ok := templates[c.lang][key]
	if !ok {
		t = templates[LangEN][key]
	}
	return t.Title, fmt.Sprintf(t.Message, args...)
}

// Label returns the localized name of an absence type, or the raw value.
func (c *Catalog) Label(absenceType string) string {
	if l, ok := labels[c.lang][absenceType]; ok {
		return l
	}
	return absenceType
}
