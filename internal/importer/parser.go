package importer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lox/healthdash/internal/models"
)

// BatchSize is the number of rows buffered per table before a flush.
const BatchSize = 5000

const (
	elemRoot              = "HealthData"
	elemRecord            = "Record"
	elemActivitySummary   = "ActivitySummary"
	elemWorkout           = "Workout"
	elemWorkoutStatistics = "WorkoutStatistics"
)

var errNoRoot = errors.New("no root element")

// rowSink receives flushed batches. *store.Replacement implements it.
type rowSink interface {
	InsertMeasurements([]models.Measurement) error
	InsertDailySummaries([]models.DailySummary) error
	InsertWorkouts([]models.WorkoutSession) error
}

// parseContext carries all state for one pass over an export. Nothing about
// an in-progress parse lives outside it.
type parseContext struct {
	sink      rowSink
	batchSize int
	log       *slog.Logger

	records   []models.Measurement
	summaries []models.DailySummary
	workouts  []models.WorkoutSession

	// Attributes arrive on the start tag but rows are emitted at the close.
	pendingRecord  *xml.StartElement
	pendingSummary *xml.StartElement
	pendingStat    *xml.StartElement

	// workout is the single open session builder; nil when none is open.
	workout *workoutBuilder

	depth    int
	rootSeen bool

	result Result
}

type workoutBuilder struct {
	session   models.WorkoutSession
	startDate string
}

func newParseContext(sink rowSink, batchSize int, log *slog.Logger) *parseContext {
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	return &parseContext{
		sink:      sink,
		batchSize: batchSize,
		log:       log,
		result:    Result{Skipped: map[string]int{}},
	}
}

// run consumes the document token by token. Memory stays bounded by the
// current batches plus one element's attributes.
func (p *parseContext) run(ctx context.Context, r io.Reader) error {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &MalformedInputError{Offset: dec.InputOffset(), Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.enterElement(t); err != nil {
				return &MalformedInputError{Offset: dec.InputOffset(), Err: err}
			}
			p.onStart(t)
		case xml.EndElement:
			p.depth--
			p.onEnd(t)
		default:
			continue
		}

		if err := p.flushFull(ctx); err != nil {
			return err
		}
	}

	if !p.rootSeen {
		return &MalformedInputError{Offset: dec.InputOffset(), Err: errNoRoot}
	}

	if p.workout != nil {
		p.log.Warn("export ended inside an open workout; discarding it",
			"activity_type", p.workout.session.ActivityType)
		p.workout = nil
	}
	return p.flushAll()
}

// enterElement enforces a single HealthData root.
func (p *parseContext) enterElement(se xml.StartElement) error {
	if p.depth == 0 {
		if p.rootSeen {
			return fmt.Errorf("second root element <%s>", se.Name.Local)
		}
		if se.Name.Local != elemRoot {
			return fmt.Errorf("root element is <%s>, want <%s>", se.Name.Local, elemRoot)
		}
		p.rootSeen = true
	}
	p.depth++
	return nil
}

func (p *parseContext) onStart(se xml.StartElement) {
	switch se.Name.Local {
	case elemRecord:
		p.pendingRecord = &se
	case elemActivitySummary:
		p.pendingSummary = &se
	case elemWorkoutStatistics:
		p.pendingStat = &se
	case elemWorkout:
		if p.workout != nil {
			p.log.Warn("workout opened before previous one closed; resetting builder",
				"discarded", p.workout.session.ActivityType)
			p.result.WorkoutResets++
		}
		p.workout = openWorkout(&se)
	}
}

func (p *parseContext) onEnd(ee xml.EndElement) {
	switch ee.Name.Local {
	case elemRecord:
		if p.pendingRecord != nil {
			p.handleRecord(p.pendingRecord)
			p.pendingRecord = nil
		}
	case elemActivitySummary:
		if p.pendingSummary != nil {
			p.handleSummary(p.pendingSummary)
			p.pendingSummary = nil
		}
	case elemWorkoutStatistics:
		if p.pendingStat != nil && p.workout != nil {
			p.workout.addStatistic(p.pendingStat, p.log)
		}
		p.pendingStat = nil
	case elemWorkout:
		if p.workout != nil {
			p.commitWorkout()
		}
	}
}

func (p *parseContext) skip(reason string) {
	p.result.Skipped[reason]++
}

func (p *parseContext) handleRecord(se *xml.StartElement) {
	typ, _ := attr(se, "type")
	metric := models.MetricType(typ)
	if !metric.Allowed() {
		p.result.Filtered++
		return
	}

	raw, ok := attr(se, "value")
	if !ok {
		p.skip(SkipMissingValue)
		return
	}
	value, ok := parseFloat(raw)
	if !ok {
		p.skip(SkipNonNumericValue)
		return
	}
	startRaw, _ := attr(se, "startDate")
	start, ok := parseTimestamp(startRaw)
	if !ok {
		p.skip(SkipBadTimestamp)
		return
	}

	p.records = append(p.records, models.Measurement{
		Type:       metric,
		SourceName: attrString(se, "sourceName"),
		Unit:       attrString(se, "unit"),
		StartDate:  start,
		EndDate:    attrTimestamp(se, "endDate"),
		Value:      value,
	})
}

func (p *parseContext) handleSummary(se *xml.StartElement) {
	raw, ok := attr(se, "dateComponents")
	if !ok || raw == "" {
		p.skip(SkipMissingDate)
		return
	}
	date, ok := parseDate(raw)
	if !ok {
		p.skip(SkipBadDate)
		return
	}

	p.summaries = append(p.summaries, models.DailySummary{
		Date:                   date,
		ExerciseMinutes:        attrFloat(se, "appleExerciseTime"),
		ActiveEnergyBurned:     attrFloat(se, "activeEnergyBurned"),
		ActiveEnergyBurnedGoal: attrFloat(se, "activeEnergyBurnedGoal"),
		StandHours:             attrInt(se, "appleStandHours"),
		StandHoursGoal:         attrInt(se, "appleStandHoursGoal"),
	})
}

func openWorkout(se *xml.StartElement) *workoutBuilder {
	activity, _ := attr(se, "workoutActivityType")
	start, _ := attr(se, "startDate")
	return &workoutBuilder{
		startDate: start,
		session: models.WorkoutSession{
			ActivityType: activity,
			Duration:     attrFloat(se, "duration"),
			SourceName:   attrString(se, "sourceName"),
			EndDate:      attrTimestamp(se, "endDate"),
		},
	}
}

func (b *workoutBuilder) addStatistic(se *xml.StartElement, log *slog.Logger) {
	label, _ := attr(se, "type")
	switch models.ClassifyStatistic(label) {
	case models.StatisticDistance:
		b.session.TotalDistance = attrFloat(se, "sum")
		b.session.TotalDistanceUnit = attrString(se, "unit")
	case models.StatisticEnergy:
		b.session.TotalEnergyBurned = attrFloat(se, "sum")
		b.session.TotalEnergyBurnedUnit = attrString(se, "unit")
	default:
		log.Debug("ignoring workout statistic", "type", label)
	}
}

func (p *parseContext) commitWorkout() {
	b := p.workout
	p.workout = nil

	start, ok := parseTimestamp(b.startDate)
	if !ok {
		p.skip(SkipBadTimestamp)
		return
	}
	b.session.StartDate = start
	p.workouts = append(p.workouts, b.session)
}

func (p *parseContext) flushFull(ctx context.Context) error {
	full := len(p.records) >= p.batchSize ||
		len(p.summaries) >= p.batchSize ||
		len(p.workouts) >= p.batchSize
	if !full {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(p.records) >= p.batchSize {
		if err := p.flushRecords(); err != nil {
			return err
		}
	}
	if len(p.summaries) >= p.batchSize {
		if err := p.flushSummaries(); err != nil {
			return err
		}
	}
	if len(p.workouts) >= p.batchSize {
		if err := p.flushWorkouts(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parseContext) flushAll() error {
	if err := p.flushRecords(); err != nil {
		return err
	}
	if err := p.flushSummaries(); err != nil {
		return err
	}
	return p.flushWorkouts()
}

func (p *parseContext) flushRecords() error {
	if len(p.records) == 0 {
		return nil
	}
	if err := p.sink.InsertMeasurements(p.records); err != nil {
		return &StorageError{Op: "insert records", Err: err}
	}
	p.result.Records += len(p.records)
	p.records = p.records[:0]
	return nil
}

func (p *parseContext) flushSummaries() error {
	if len(p.summaries) == 0 {
		return nil
	}
	if err := p.sink.InsertDailySummaries(p.summaries); err != nil {
		return &StorageError{Op: "insert activity summaries", Err: err}
	}
	p.result.ActivitySummaries += len(p.summaries)
	p.summaries = p.summaries[:0]
	return nil
}

func (p *parseContext) flushWorkouts() error {
	if len(p.workouts) == 0 {
		return nil
	}
	if err := p.sink.InsertWorkouts(p.workouts); err != nil {
		return &StorageError{Op: "insert workouts", Err: err}
	}
	p.result.Workouts += len(p.workouts)
	p.workouts = p.workouts[:0]
	return nil
}
