package postgres

import (
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/idb"
)

type postgresFactory struct {
}

func (df postgresFactory) Name() string {
	return "postgres"
}

func (df postgresFactory) Build(arg string, opts idb.ReportDbOptions, log *log.Logger) (idb.ReportDb, chan struct{}, error) {
	return OpenPostgres(arg, opts, log)
}

func init() {
	idb.RegisterFactory("postgres", &postgresFactory{})
}
