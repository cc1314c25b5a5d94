package dummy

import (
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/idb"
)

type dummyFactory struct {
}

// Name is part of the ReportDbFactory interface.
func (df dummyFactory) Name() string {
	return "dummy"
}

// Build is part of the ReportDbFactory interface.
func (df dummyFactory) Build(arg string, opts idb.ReportDbOptions, logger *log.Logger) (idb.ReportDb, chan struct{}, error) {
	ch := make(chan struct{})
	close(ch)
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &dummyReportDb{log: logger}, ch, nil
}

func init() {
	idb.RegisterFactory("dummy", &dummyFactory{})
}
