package clinical

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// SubjectRecord bundles every record held for one subject.
type SubjectRecord struct {
	Subject          Subject
	Visits           []Visit
	Labs             []LabResult
	ECGs             []ECGResult
	AdverseEvents    []AdverseEvent
	MedicalHistory   []MedicalCondition
	ConMeds          []ConMed
	TumorAssessments []TumorAssessment
}

// MemoryLibrary is an in-memory Library used for fixtures and tests.
type MemoryLibrary struct {
	mu       sync.RWMutex
	subjects map[string]*SubjectRecord

	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewMemoryLibrary creates a library holding the given records.
func NewMemoryLibrary(records ...SubjectRecord) *MemoryLibrary {
	m := &MemoryLibrary{subjects: make(map[string]*SubjectRecord)}
	for _, r := range records {
		m.Put(r)
	}
	return m
}

// Put adds or replaces a subject record.
func (m *MemoryLibrary) Put(r SubjectRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc := r
	m.subjects[r.Subject.ID] = &rc
}

func (m *MemoryLibrary) get(subjectID, source string) (*SubjectRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.subjects[subjectID]
	if !ok {
		return nil, NewDataUnavailableError(subjectID, source, "subject not found", nil)
	}
	return r, nil
}

// Ping implements Library.
func (m *MemoryLibrary) Ping(ctx context.Context) error {
	return m.PingErr
}

// Subject implements Library.
func (m *MemoryLibrary) Subject(ctx context.Context, subjectID string) (*Subject, error) {
	r, err := m.get(subjectID, SourceSubjects)
	if err != nil {
		return nil, err
	}
	s := r.Subject
	return &s, nil
}

// SubjectIDs implements Library.
func (m *MemoryLibrary) SubjectIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.subjects))
	for id := range m.subjects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MedicalHistory implements Library.
func (m *MemoryLibrary) MedicalHistory(ctx context.Context, subjectID string, filter HistoryFilter) ([]MedicalCondition, error) {
	r, err := m.get(subjectID, SourceMedicalHistory)
	if err != nil {
		return nil, err
	}
	var out []MedicalCondition
	for _, c := range r.MedicalHistory {
		if len(filter.Terms) > 0 && !containsAny(c.Condition, filter.Terms) {
			continue
		}
		if filter.Status == StatusOngoing && !c.Ongoing || filter.Status == StatusResolved && c.Ongoing {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ConMeds implements Library.
func (m *MemoryLibrary) ConMeds(ctx context.Context, subjectID string, filter ConMedFilter) ([]ConMed, error) {
	r, err := m.get(subjectID, SourceConMeds)
	if err != nil {
		return nil, err
	}
	filtered := len(filter.Names) > 0 || len(filter.Classes) > 0
	var out []ConMed
	for _, c := range r.ConMeds {
		if filtered && !containsAny(c.Name, filter.Names) && !containsAny(c.Class, filter.Classes) {
			continue
		}
		if filter.OngoingOnly && !c.Ongoing {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Labs implements Library.
func (m *MemoryLibrary) Labs(ctx context.Context, subjectID string, filter LabFilter) ([]LabResult, error) {
	r, err := m.get(subjectID, SourceLabs)
	if err != nil {
		return nil, err
	}
	var out []LabResult
	for _, l := range r.Labs {
		if len(filter.TestNames) > 0 && !equalsAny(l.TestName, filter.TestNames) {
			continue
		}
		if filter.Since != "" && l.CollectionDate < filter.Since {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CollectionDate < out[j].CollectionDate })
	return out, nil
}

// ECGs implements Library.
func (m *MemoryLibrary) ECGs(ctx context.Context, subjectID string) ([]ECGResult, error) {
	r, err := m.get(subjectID, SourceECG)
	if err != nil {
		return nil, err
	}
	out := append([]ECGResult(nil), r.ECGs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ECGDate < out[j].ECGDate })
	return out, nil
}

// TumorAssessments implements Library.
func (m *MemoryLibrary) TumorAssessments(ctx context.Context, subjectID string) ([]TumorAssessment, error) {
	r, err := m.get(subjectID, SourceTumorAssessments)
	if err != nil {
		return nil, err
	}
	return append([]TumorAssessment(nil), r.TumorAssessments...), nil
}

// AdverseEvents implements Library.
func (m *MemoryLibrary) AdverseEvents(ctx context.Context, subjectID string, filter AEFilter) ([]AdverseEvent, error) {
	r, err := m.get(subjectID, SourceAdverseEvents)
	if err != nil {
		return nil, err
	}
	var out []AdverseEvent
	for _, ae := range r.AdverseEvents {
		if filter.Seriousness != "" && !strings.EqualFold(ae.Seriousness, filter.Seriousness) {
			continue
		}
		if filter.Ongoing != nil && ae.Ongoing != *filter.Ongoing {
			continue
		}
		if filter.MinGrade > 0 && ae.Grade < filter.MinGrade {
			continue
		}
		out = append(out, ae)
	}
	return out, nil
}

// Visits implements Library.
func (m *MemoryLibrary) Visits(ctx context.Context, subjectID string) ([]Visit, error) {
	r, err := m.get(subjectID, SourceVisits)
	if err != nil {
		return nil, err
	}
	out := append([]Visit(nil), r.Visits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].VisitNumber < out[j].VisitNumber })
	return out, nil
}

func containsAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func equalsAny(s string, values []string) bool {
	for _, v := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
