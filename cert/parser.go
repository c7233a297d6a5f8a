package cert

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	cerrors "github.com/webpki/certparse/errors"
	"github.com/webpki/certparse/log"
)

// Parser wraps Create with logging and metrics for services that parse
// untrusted certificates in volume. Create itself stays pure; Parser is the
// operational skin around it.
type Parser struct {
	opts   ParseOptions
	log    log.Logger
	parses *prometheus.CounterVec
}

// NewParser constructs a Parser. Every parse outcome is counted in the
// cert_parses counter, labelled with the result ("success" or "error") and,
// for errors, the kind of the first error entry.
func NewParser(opts ParseOptions, logger log.Logger, stats prometheus.Registerer) *Parser {
	parses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cert_parses",
		Help: "Certificate parse attempts, by outcome.",
	}, []string{"result", "kind"})
	stats.MustRegister(parses)

	return &Parser{
		opts:   opts,
		log:    logger,
		parses: parses,
	}
}

// Parse runs Create on der, mirrors every diagnostic to the logger, and on
// failure returns a single error summarizing the first fatal entry.
func (p *Parser) Parse(der []byte) (*ParsedCertificate, error) {
	var collector cerrors.Collector
	c := Create(der, p.opts, &collector)

	var firstErr *cerrors.Entry
	for _, e := range collector.Entries() {
		switch e.Severity {
		case cerrors.SeverityWarning:
			p.log.Warning(e.String())
		case cerrors.SeverityError:
			p.log.Err(e.String())
			if firstErr == nil {
				entry := e
				firstErr = &entry
			}
		}
	}

	if c == nil {
		kind := cerrors.Framing
		code := "parse"
		if firstErr != nil {
			kind = firstErr.Kind
			code = firstErr.Code
		}
		p.parses.WithLabelValues("error", kind.String()).Inc()
		return nil, cerrors.New(kind, code, "certificate parse failed: %s", summarize(firstErr))
	}

	p.parses.WithLabelValues("success", "").Inc()
	return c, nil
}

func summarize(e *cerrors.Entry) string {
	if e == nil {
		return "no diagnostics recorded"
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Context)
}
