package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"symmap/internal/mapper"
	"symmap/internal/mapping"
	"symmap/internal/slots"
)

// ErrCriticalFailed is returned by resolve when a critical mapping failed.
var ErrCriticalFailed = errors.New("critical mappings failed to resolve")

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve every mapping of a rule document against module images",
	Long: `Resolve loads the rule document, registers the module images and runs the
eager resolution pass, followed by the deferred pass when --deferred is set.
It exits non-zero when a critical mapping fails.`,
	Example: `
# Main module plus a named DLL
symmap resolve --rules rules.xml --module game.exe --module Engine=engine.dll

# Only accept the slots the host declares
symmap resolve --rules rules.xml --module game.exe --slot GWorld --slot GNames --json
  `,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		lg := newLogger(cfg.LogLevel)
		defer lg.Close()

		res, err := runResolve(cfg, lg.Logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			if err := writeJSON(out, res); err != nil {
				return err
			}
		} else {
			printReport(out, res)
		}

		if res.engine.HasFailedCriticalMappings() {
			return ErrCriticalFailed
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringP("rules", "r", "", "XML rule document")
	resolveCmd.Flags().StringSliceP("module", "m", nil, "Module image as Name=path (repeatable; a bare path is Main)")
	resolveCmd.Flags().Int("revision", 0, "Binary revision for version guards")
	resolveCmd.Flags().StringSlice("slot", nil, "Declare an output slot (repeatable)")
	resolveCmd.Flags().Bool("auto-slots", false, "Declare every slot the rule document names")
	resolveCmd.Flags().Bool("deferred", false, "Also run the deferred pass")
	resolveCmd.Flags().Bool("in-process", false, "Load modules into this process (windows only)")
	resolveCmd.Flags().String("log-level", "", "Engine log level: debug, info, warn, error")
	resolveCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
}

// resolution is everything one resolve run produced.
type resolution struct {
	engine      *mapper.Engine
	slots       *slots.Table
	rules       *mapping.RuleSet
	diagnostics []*mapping.LoadError
	reports     []*mapper.Report
}

// runResolve wires the slot table, loader and engine the way a host would,
// then runs the passes cfg asks for.
func runResolve(cfg *Config, lg *log.Logger, opts ...mapper.Option) (*resolution, error) {
	if cfg.Rules == "" {
		return nil, errors.New("no rule document: set --rules or rules in the config file")
	}
	modules, err := cfg.ParseModules()
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, errors.New("no modules: pass --module or set modules in the config file")
	}

	table := slots.NewTable(cfg.Slots...)
	// With nothing declared every name a document uses becomes a slot.
	table.SetAutoDeclare(cfg.AutoSlots || len(cfg.Slots) == 0)

	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
	}

	ld := mapping.NewLoader(table, mapping.WithLogger(lg), mapping.WithModules(names...))
	if err := ld.LoadFile(cfg.Rules); err != nil {
		return nil, err
	}
	for _, d := range ld.Diagnostics() {
		lg.Warn("rule discarded", "element", d.Element, "name", d.Name, "err", d.Err)
	}
	rules := ld.RuleSet()
	lg.Info("rules loaded", "mappings", len(rules.Mappings), "imports", len(rules.Imports), "alternates", rules.Alternates)

	opts = append([]mapper.Option{
		mapper.WithLogger(lg),
		mapper.WithSlots(table),
		mapper.WithRevision(cfg.Revision),
	}, opts...)
	if cfg.InProcess {
		opts = append(opts, mapper.WithImportResolver(mapper.ProcessImports{}))
	}
	e := mapper.New(rules, opts...)

	for _, m := range modules {
		add := e.AddModule
		if cfg.InProcess {
			add = e.AddProcessModule
		}
		if err := add(m.Name, m.Path); err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name, err)
		}
		slog.Debug("module registered", "name", m.Name, "path", m.Path)
	}

	res := &resolution{
		engine:      e,
		slots:       table,
		rules:       rules,
		diagnostics: ld.Diagnostics(),
	}
	res.reports = append(res.reports, e.MapAllSymbols(false))
	if cfg.Deferred {
		res.reports = append(res.reports, e.MapAllSymbols(true))
	}
	return res, nil
}

type jsonResolution struct {
	Slots       map[string]string `json:"slots"`
	Passes      []jsonPass        `json:"passes"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Failed      bool              `json:"failed"`
	Critical    bool              `json:"critical"`
}

type jsonPass struct {
	Deferred       bool          `json:"deferred"`
	Mapped         []jsonMapped  `json:"mapped"`
	Skipped        []string      `json:"skipped,omitempty"`
	Failures       []jsonFailure `json:"failures,omitempty"`
	Suppressed     int           `json:"suppressed"`
	Imports        int           `json:"imports"`
	ImportFailures []string      `json:"import_failures,omitempty"`
}

type jsonMapped struct {
	Mapping string `json:"mapping"`
	Match   string `json:"match"`
}

type jsonFailure struct {
	Mapping  string `json:"mapping"`
	Critical bool   `json:"critical"`
	Error    string `json:"error"`
}

func toJSON(res *resolution) jsonResolution {
	out := jsonResolution{
		Slots:    make(map[string]string),
		Failed:   res.engine.HasFailedMappings(),
		Critical: res.engine.HasFailedCriticalMappings(),
	}
	for name, v := range res.slots.Values() {
		out.Slots[name] = fmt.Sprintf("%#x", v)
	}
	for _, d := range res.diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.Error())
	}
	for _, r := range res.reports {
		p := jsonPass{
			Deferred:   r.Deferred,
			Mapped:     []jsonMapped{},
			Skipped:    r.Skipped,
			Suppressed: len(r.Suppressed),
			Imports:    r.Imports,
		}
		for _, m := range r.Mapped {
			p.Mapped = append(p.Mapped, jsonMapped{Mapping: m.Mapping, Match: fmt.Sprintf("%#x", m.Match)})
		}
		for _, f := range r.Failures {
			p.Failures = append(p.Failures, jsonFailure{Mapping: f.Mapping, Critical: f.Critical, Error: f.Err.Error()})
		}
		for _, f := range r.ImportFailures {
			p.ImportFailures = append(p.ImportFailures, f.Error())
		}
		out.Passes = append(out.Passes, p)
	}
	return out
}

func writeJSON(w io.Writer, res *resolution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toJSON(res)); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
