package engine

import (
	"strings"

	"motorcortex/internal/intent"
)

// SubjectGroup is a run of steps that act on one subject named in the
// command text, such as an app, site, or file.
type SubjectGroup struct {
	SubjectName string        `json:"subject_name"`
	SubjectType string        `json:"subject_type"` // url, app, file, unknown
	Steps       []intent.Step `json:"steps"`
	StartIndex  int           `json:"start_index"`
}

// ExtractSubjects groups steps by the subject they act on. Commands that
// name several subjects joined by "and" or "then" split into one group per
// subject; everything else stays in a single group. StartIndex records
// where each group begins in the original step list so execution order is
// preserved.
func ExtractSubjects(text string, steps []intent.Step) []SubjectGroup {
	if len(steps) == 0 {
		return nil
	}

	subjects := identifySubjects(steps)

	lowered := strings.ToLower(text)
	conjoined := strings.Contains(lowered, " and ") || strings.Contains(lowered, " then ")

	if len(subjects) <= 1 || !conjoined {
		return []SubjectGroup{{
			SubjectName: subjectFromStep(steps[0]),
			SubjectType: subjectTypeFor(steps[0]),
			Steps:       steps,
			StartIndex:  0,
		}}
	}

	return assignStepsToSubjects(subjects, steps)
}

// identifySubjects collects distinct subject names in order of first
// appearance across the step list.
func identifySubjects(steps []intent.Step) []string {
	var subjects []string
	for _, step := range steps {
		name := subjectFromStep(step)
		if name == "" {
			continue
		}
		known := false
		for _, s := range subjects {
			if s == name {
				known = true
				break
			}
		}
		if !known {
			subjects = append(subjects, name)
		}
	}
	return subjects
}

// assignStepsToSubjects walks the steps in order and attaches each to the
// group of the subject it names. Steps that name no subject of their own
// (a scroll after opening a site, say) stay with the current subject.
func assignStepsToSubjects(subjects []string, steps []intent.Step) []SubjectGroup {
	var groups []SubjectGroup
	currentIdx := 0

	for i, step := range steps {
		stepSubject := strings.ToLower(subjectFromStep(step))

		matched := -1
		for idx, subject := range subjects {
			sl := strings.ToLower(subject)
			if strings.Contains(sl, stepSubject) || strings.Contains(stepSubject, sl) {
				matched = idx
				break
			}
		}
		if matched < 0 {
			matched = currentIdx
		}
		currentIdx = matched

		found := -1
		for gi := range groups {
			if groups[gi].SubjectName == subjects[matched] {
				found = gi
				break
			}
		}
		if found >= 0 {
			groups[found].Steps = append(groups[found].Steps, step)
			continue
		}
		groups = append(groups, SubjectGroup{
			SubjectName: subjects[matched],
			SubjectType: subjectTypeFor(step),
			Steps:       []intent.Step{step},
			StartIndex:  i,
		})
	}

	return groups
}

// subjectFromStep names the entity a step acts on.
func subjectFromStep(step intent.Step) string {
	switch step.Intent {
	case intent.IntentOpenApp:
		if step.App != "" {
			return step.App
		}
		return "Unknown App"
	case intent.IntentOpenURL:
		lowered := strings.ToLower(step.URL)
		switch {
		case strings.Contains(lowered, "youtube"):
			return "YouTube"
		case strings.Contains(lowered, "gmail"), strings.Contains(lowered, "mail.google"):
			return "Gmail"
		case strings.Contains(lowered, "google"):
			return "Google"
		case strings.Contains(lowered, "github"):
			return "GitHub"
		}
		if i := strings.Index(step.URL, "/"); i >= 0 {
			return step.URL[:i]
		}
		return step.URL
	case intent.IntentOpenFile:
		if i := strings.LastIndex(step.Path, "/"); i >= 0 {
			return step.Path[i+1:]
		}
		return step.Path
	case intent.IntentWebSendMessage:
		if step.Contact != "" {
			return step.Contact
		}
		return "Contact"
	default:
		return "Unknown"
	}
}

// subjectTypeFor classifies the subject by the step that introduced it.
func subjectTypeFor(step intent.Step) string {
	switch {
	case step.Intent == intent.IntentOpenURL || strings.HasPrefix(step.Intent, "web_"):
		return "url"
	case step.Intent == intent.IntentOpenApp:
		return "app"
	case step.Intent == intent.IntentOpenFile:
		return "file"
	default:
		return "unknown"
	}
}
