package idb

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ReportDbFactory is used to install a ReportDb implementation.
type ReportDbFactory interface {
	Name() string
	Build(arg string, opts ReportDbOptions, log *log.Logger) (ReportDb, chan struct{}, error)
}

// This layer of indirection allows for different db integrations to be compiled in or compiled out by `go build --tags ...`
var reportFactories map[string]ReportDbFactory

// RegisterFactory is used by ReportDb implementations to register their implementations. This mechanism allows
// for loose coupling between the configuration and the implementation. It is extremely similar to the way sql.DB
// driver's are configured and used.
func RegisterFactory(name string, factory ReportDbFactory) {
	reportFactories[name] = factory
}

// ReportDbByName is used to construct a ReportDb object by name.
// Returns a ReportDb object, an availability channel that closes when the database
// becomes available, and an error object.
func ReportDbByName(name, arg string, opts ReportDbOptions, log *log.Logger) (ReportDb, chan struct{}, error) {
	if val, ok := reportFactories[name]; ok {
		return val.Build(arg, opts, log)
	}
	return nil, nil, fmt.Errorf("no ReportDb factory for %s", name)
}

func init() {
	reportFactories = make(map[string]ReportDbFactory)
}
