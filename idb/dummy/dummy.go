package dummy

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/idb"
)

type dummyReportDb struct {
	log *log.Logger
}

// ReportDb is a no-op implementation of idb.ReportDb.
func ReportDb() idb.ReportDb {
	return &dummyReportDb{log: log.StandardLogger()}
}

func (db *dummyReportDb) Close() {
}

// ClientSummaries is part of idb.ReportDb
func (db *dummyReportDb) ClientSummaries(ctx context.Context, q idb.ClientSummaryQuery) (idb.ClientSummaryPage, error) {
	db.log.Debugf("ClientSummaries page %d", q.Page)
	return idb.ClientSummaryPage{Rows: []idb.ClientSummary{}}, nil
}

// ClientAccounts is part of idb.ReportDb
func (db *dummyReportDb) ClientAccounts(ctx context.Context, clientID int64) ([]idb.ClientAccount, error) {
	return nil, idb.ErrNotFound
}

// RefreshStatus is part of idb.ReportDb
func (db *dummyReportDb) RefreshStatus(ctx context.Context) (idb.RefreshStatus, error) {
	return idb.RefreshStatus{}, nil
}

// PnlSummary is part of idb.ReportDb
func (db *dummyReportDb) PnlSummary(ctx context.Context, symbol string) ([]idb.PnlSummaryRow, error) {
	return []idb.PnlSummaryRow{}, nil
}

// ZipcodeDistribution is part of idb.ReportDb
func (db *dummyReportDb) ZipcodeDistribution(ctx context.Context) ([]idb.ZipcodeBucket, error) {
	return []idb.ZipcodeBucket{}, nil
}

// ZipcodeChanges is part of idb.ReportDb
func (db *dummyReportDb) ZipcodeChanges(ctx context.Context, q idb.ZipcodeChangeQuery) (idb.ZipcodeChangePage, error) {
	return idb.ZipcodeChangePage{Rows: []idb.ZipcodeChange{}}, nil
}

// ZipcodeExclusions is part of idb.ReportDb
func (db *dummyReportDb) ZipcodeExclusions(ctx context.Context, active *bool) ([]idb.ZipcodeExclusion, error) {
	return []idb.ZipcodeExclusion{}, nil
}

// ZipcodeChangeFrequency is part of idb.ReportDb
func (db *dummyReportDb) ZipcodeChangeFrequency(ctx context.Context, q idb.ChangeFrequencyQuery) (idb.ChangeFrequencyPage, error) {
	return idb.ChangeFrequencyPage{Rows: []idb.ChangeFrequency{}}, nil
}

// Health is part of idb.ReportDb
func (db *dummyReportDb) Health(ctx context.Context) (idb.Health, error) {
	return idb.Health{DBAvailable: true}, nil
}
