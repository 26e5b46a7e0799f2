package costing

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmtrace/internal/domain/allocation"
	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/metrics"
)

type memoryBatches struct {
	records map[string][]models.BatchRecord
	rootErr error
}

func (m *memoryBatches) LoadLineage(_ context.Context, rootID string) ([]models.BatchRecord, error) {
	return m.records[rootID], nil
}

func (m *memoryBatches) ListRootIDs(_ context.Context) ([]string, error) {
	if m.rootErr != nil {
		return nil, m.rootErr
	}
	return []string{"lote-1", "lote-2", "lote-missing"}, nil
}

type countingTemplates struct {
	templates models.StageTemplates
	calls     int
}

func (c *countingTemplates) LoadStageTemplates(_ context.Context) (models.StageTemplates, error) {
	c.calls++
	return c.templates, nil
}

type memoryLedger struct {
	mu      sync.Mutex
	entries models.CostLedger
	loadErr error
}

func (m *memoryLedger) LoadLedger(_ context.Context, nodeIDs []string) (models.CostLedger, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.CostLedger{}
	for _, id := range nodeIDs {
		if entry, ok := m.entries[id]; ok {
			out.Set(id, entry)
		}
	}
	return out, nil
}

func (m *memoryLedger) SaveCostEntry(_ context.Context, nodeID string, entry models.CostEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Set(nodeID, entry)
	return nil
}

type memoryReports struct {
	saved  []models.CostReport
	failOn string
}

func (m *memoryReports) SaveCostReport(_ context.Context, report models.CostReport) error {
	if report.RootID == m.failOn {
		return errors.New("disk full")
	}
	m.saved = append(m.saved, report)
	return nil
}

func stageTemplates() models.StageTemplates {
	return models.StageTemplates{
		"cacao": {
			{ID: "fermentacion", Orden: 1, CamposJSON: models.StageFields{
				Entradas: []models.FieldSpec{{Name: "pesoBaba"}},
				Salidas:  []models.FieldSpec{{Name: "pesoFermentado"}},
			}},
			{ID: "secado", Orden: 2, CamposJSON: models.StageFields{
				Entradas: []models.FieldSpec{{Name: "pesoFermentado"}},
				Salidas:  []models.FieldSpec{{Name: "pesoSeco"}},
			}},
		},
	}
}

func lineageRecords(rootID string, dryWeight interface{}) []models.BatchRecord {
	created := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	return []models.BatchRecord{
		{ID: rootID, RootID: rootID, TemplateID: "cacao", StageID: "fermentacion", CreatedAt: created,
			Data: map[string]interface{}{"pesoBaba": 100.0, "pesoFermentado": map[string]interface{}{"value": "80"}}},
		{ID: rootID + "-secado", ParentID: rootID, RootID: rootID, TemplateID: "cacao", StageID: "secado", CreatedAt: created.Add(time.Hour),
			Data: map[string]interface{}{"pesoSeco": dryWeight}},
	}
}

type fixture struct {
	batches   *memoryBatches
	templates *countingTemplates
	ledger    *memoryLedger
	reports   *memoryReports
	recorder  *metrics.Recorder
	service   *Service
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		batches: &memoryBatches{records: map[string][]models.BatchRecord{
			"lote-1": lineageRecords("lote-1", 40.0),
			"lote-2": lineageRecords("lote-2", ""),
		}},
		templates: &countingTemplates{templates: stageTemplates()},
		ledger: &memoryLedger{entries: models.CostLedger{
			"lote-1":        {CostoAdquisicion: 200},
			"lote-1-secado": {CostoManoDeObra: 20},
			"lote-2":        {CostoAdquisicion: 100},
		}},
		reports:  &memoryReports{},
		recorder: metrics.NewRecorder(),
	}
	f.service = NewService(Dependencies{
		Batches:   f.batches,
		Templates: f.templates,
		Ledger:    f.ledger,
		Reports:   f.reports,
	}, Options{TemplateTTL: ttl, Parallelism: 2, Metrics: f.recorder}, nil)
	f.service.now = func() time.Time { return time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC) }
	return f
}

func TestCostLineage(t *testing.T) {
	f := newFixture(t, time.Minute)

	report, err := f.service.CostLineage(context.Background(), "lote-1")
	require.NoError(t, err)

	require.Len(t, report.Lines, 2)
	assert.InDelta(t, 2.5, report.Lines[0].Metrics.CostPerKg, 1e-9)
	assert.InDelta(t, 80, report.Lines[1].Metrics.InputWeight, 1e-9)
	assert.InDelta(t, 5.5, report.FinalCostPerKg, 1e-9)
	assert.InDelta(t, 40, report.FinalOutputKg, 1e-9)
	assert.Empty(t, f.reports.saved)
}

func TestCostLineage_Errors(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.CostLineage(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyRootID)

	_, err = f.service.CostLineage(context.Background(), "lote-missing")
	assert.ErrorIs(t, err, models.ErrBatchNotFound)

	f.ledger.loadErr = errors.New("timeout")
	_, err = f.service.CostLineage(context.Background(), "lote-1")
	assert.ErrorContains(t, err, "load ledger for lote-1")
}

func TestCostLineage_TemplateCache(t *testing.T) {
	f := newFixture(t, time.Minute)
	for i := 0; i < 3; i++ {
		_, err := f.service.CostLineage(context.Background(), "lote-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.templates.calls)

	uncached := newFixture(t, 0)
	for i := 0; i < 3; i++ {
		_, err := uncached.service.CostLineage(context.Background(), "lote-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, uncached.templates.calls)
}

func TestCostLineage_SumStrategy(t *testing.T) {
	f := newFixture(t, 0)
	f.service = NewService(Dependencies{
		Batches:   f.batches,
		Templates: f.templates,
		Ledger:    f.ledger,
	}, Options{Engine: allocation.New(allocation.WithFieldSelection(allocation.SelectSumDeclared))}, nil)

	report, err := f.service.CostLineage(context.Background(), "lote-1")
	require.NoError(t, err)
	assert.InDelta(t, 5.5, report.FinalCostPerKg, 1e-9)
}

func TestCostLineage_RecordsMetrics(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.CostLineage(context.Background(), "lote-2")
	require.NoError(t, err)
	_, err = f.service.CostLineage(context.Background(), "lote-missing")
	require.Error(t, err)

	expected := `
# HELP farmtrace_lineage_cost_total Total lineage costings by outcome.
# TYPE farmtrace_lineage_cost_total counter
farmtrace_lineage_cost_total{outcome="failure"} 1
farmtrace_lineage_cost_total{outcome="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.recorder.Registry(), strings.NewReader(expected), "farmtrace_lineage_cost_total"))
}

func TestSaveCostEntry(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.service.SaveCostEntry(context.Background(), "lote-2-secado", models.CostEntry{CostoInsumos: 60}))
	assert.Equal(t, 60.0, f.ledger.entries.Entry("lote-2-secado").Total())

	assert.Error(t, f.service.SaveCostEntry(context.Background(), "", models.CostEntry{}))

	err := f.service.SaveCostEntry(context.Background(), "lote-2-secado", models.CostEntry{CostoInsumos: math.Inf(-1)})
	assert.ErrorIs(t, err, models.ErrNonFiniteCost)
	assert.Equal(t, 60.0, f.ledger.entries.Entry("lote-2-secado").Total())
}

func TestRunAll(t *testing.T) {
	f := newFixture(t, time.Minute)

	reports, err := f.service.RunAll(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
	require.Len(t, reports, 2)
	assert.Equal(t, "lote-1", reports[0].RootID)
	assert.Equal(t, []string{"lote-2-secado"}, reports[1].IncompleteNodes)
	assert.Len(t, f.reports.saved, 2)
	assert.Equal(t, 1, f.templates.calls)
}

func TestRunAll_RecordsNodeMetrics(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.RunAll(context.Background())
	require.Error(t, err)

	expected := `
# HELP farmtrace_nodes_computed_total Total batch nodes that received cost metrics.
# TYPE farmtrace_nodes_computed_total counter
farmtrace_nodes_computed_total 4
# HELP farmtrace_nodes_incomplete_total Total batch nodes computed without a positive output weight.
# TYPE farmtrace_nodes_incomplete_total counter
farmtrace_nodes_incomplete_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.recorder.Registry(), strings.NewReader(expected),
		"farmtrace_nodes_computed_total", "farmtrace_nodes_incomplete_total"))
}

func TestRunAll_SaveFailureKeepsOtherReports(t *testing.T) {
	f := newFixture(t, 0)
	f.reports.failOn = "lote-1"

	reports, err := f.service.RunAll(context.Background())

	assert.ErrorContains(t, err, "save report for lote-1")
	require.Len(t, reports, 1)
	assert.Equal(t, "lote-2", reports[0].RootID)
}

func TestRunAll_ListFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.batches.rootErr = errors.New("no connection")

	reports, err := f.service.RunAll(context.Background())

	assert.ErrorContains(t, err, "list root batches")
	assert.Nil(t, reports)
}

func TestRunAll_Cancelled(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := f.service.RunAll(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
	assert.Empty(t, f.reports.saved)
}
