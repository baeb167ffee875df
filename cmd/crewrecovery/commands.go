package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/crewrecovery/config"
	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/recovery"
	"github.com/liamcoop/crewrecovery/rules"
)

// errNotCompliant is returned after output when the verdict is a rejection
var errNotCompliant = errors.New("not compliant")

// engine is everything a command needs, built from one config file
type engine struct {
	cfg       *config.Config
	validator *fdtl.Validator
	costs     *recovery.CostModel
	policies  *rules.Engine
	selector  *recovery.Selector
}

func loadEngine(path string) (*engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	ruleSet, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}
	v, err := fdtl.NewValidator(ruleSet)
	if err != nil {
		return nil, err
	}
	costs, err := cfg.CostModel()
	if err != nil {
		return nil, err
	}
	policies, err := rules.NewEngine(rules.NewInMemoryRuleStore())
	if err != nil {
		return nil, err
	}
	if err := rules.Seed(policies, cfg.Rules()); err != nil {
		return nil, err
	}
	sel, err := recovery.NewSelector(v, costs, recovery.WithPolicyGate(policies))
	if err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, validator: v, costs: costs, policies: policies, selector: sel}, nil
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/crewrecovery.yaml"
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "crewrecovery",
		Short:         "Compliance-checked recovery proposals for disrupted flights",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the configuration file")

	load := func() (*engine, error) { return loadEngine(configPath) }

	root.AddCommand(
		newValidateCmd(load),
		newSelectCmd(load),
		newProposeCmd(load),
		newRuleSetCmd(load),
	)
	return root
}

// dutyFlags binds the four duty snapshot values to a command
type dutyFlags struct {
	daily, weekly, sinceRest float64
	nights                   int
}

func (d *dutyFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&d.daily, "daily", 0, "Flight hours already flown today")
	cmd.Flags().Float64Var(&d.weekly, "weekly", 0, "Flight hours flown in the rolling week")
	cmd.Flags().IntVar(&d.nights, "nights", 0, "Consecutive night duties")
	cmd.Flags().Float64Var(&d.sinceRest, "since-rest", 0, "Hours since the last qualifying rest")
}

var dutyFlagNames = []string{"daily", "weekly", "nights", "since-rest"}

// given reports whether any duty flag was set, and fails if only some were
func (d *dutyFlags) given(cmd *cobra.Command) (bool, error) {
	var set, missing []string
	for _, name := range dutyFlagNames {
		if cmd.Flags().Changed(name) {
			set = append(set, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(set) > 0 && len(missing) > 0 {
		return false, fmt.Errorf("duty needs all of --%s; missing --%s",
			strings.Join(dutyFlagNames, ", --"), strings.Join(missing, ", --"))
	}
	return len(set) > 0, nil
}

func (d *dutyFlags) state() fdtl.PilotDutyState {
	return fdtl.PilotDutyState{
		DailyFlightHours:       d.daily,
		WeeklyFlightHours:      d.weekly,
		ConsecutiveNightDuties: d.nights,
		HoursSinceLastRest:     d.sinceRest,
	}
}

func newValidateCmd(load func() (*engine, error)) *cobra.Command {
	var (
		duty     dutyFlags
		duration float64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check one flight assignment against the FDTL rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			result, err := e.validator.ValidateAll(duty.state(), fdtl.ProposedFlight{DurationHours: duration})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				verdict := "COMPLIANT"
				if !result.Compliant {
					verdict = "NOT COMPLIANT"
				}
				fmt.Fprintf(out, "%s: %s\n", verdict, result.Reason)
				for _, v := range result.Violations {
					fmt.Fprintf(out, "  - %s: %s\n", v.Check, v.Reason)
				}
			}

			if !result.Compliant {
				return errNotCompliant
			}
			return nil
		},
	}
	duty.register(cmd)
	cmd.Flags().Float64Var(&duration, "duration", 0, "Flight time the assignment adds, in hours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	for _, name := range append(dutyFlagNames, "duration") {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSelectCmd(load func() (*engine, error)) *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Pick the cheapest compliant candidate from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			set, err := readCandidateSet(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			outcome, err := e.selector.Select(set)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), outcome, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Candidate set file, or - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured report instead of text")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newProposeCmd(load func() (*engine, error)) *cobra.Command {
	var (
		dc     recovery.DisruptionContext
		duty   dutyFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Draft candidates from the playbook for a disruption and select one",
		RunE: func(cmd *cobra.Command, args []string) error {
			hasDuty, err := duty.given(cmd)
			if err != nil {
				return err
			}
			if hasDuty {
				s := duty.state()
				dc.Duty = &s
			}

			e, err := load()
			if err != nil {
				return err
			}
			candidates, err := recovery.NewPlaybookGenerator().Generate(cmd.Context(), dc)
			if err != nil {
				return err
			}
			outcome, err := e.selector.Select(recovery.CandidateSet{Disruption: dc.Disruption, Candidates: candidates})
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), outcome, asJSON)
		},
	}
	f := cmd.Flags()
	f.StringVar(&dc.Disruption.Type, "type", "", "Disruption type: "+strings.Join(recovery.NewPlaybookGenerator().Types(), ", "))
	f.StringVar(&dc.Disruption.Severity, "severity", "medium", "Severity: low, medium, high or critical")
	f.StringVar(&dc.Disruption.Airport, "airport", "", "Affected airport")
	f.StringVar(&dc.Disruption.Description, "description", "", "Free-text description")
	f.StringVar(&dc.FlightID, "flight", "", "Affected flight")
	f.StringVar(&dc.AircraftID, "aircraft", "", "Affected aircraft")
	f.StringVar(&dc.PilotID, "pilot", "", "Assigned pilot")
	f.Float64Var(&dc.BlockHours, "block-hours", 0, "Flight time the crew adds by operating the flight")
	f.BoolVar(&asJSON, "json", false, "Print the structured report instead of text")
	duty.register(cmd)
	cmd.MarkFlagRequired("type")
	return cmd
}

func newRuleSetCmd(load func() (*engine, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ruleset",
		Short: "Show the FDTL limits, cost tariff and active operating policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			active, err := e.policies.ActiveRules()
			if err != nil {
				return err
			}
			rs := e.validator.Rules()
			tariff := e.costs.Tariff()

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"dgca_fdtl":   rs,
					"cost_tariff": tariff,
					"policies":    active,
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DGCA FDTL")
			fmt.Fprintf(tw, "  max daily flight time\t%g h\n", rs.MaxDailyFlightHours)
			fmt.Fprintf(tw, "  weekly flight time limit\t%g h\n", rs.MaxWeeklyFlightHours)
			fmt.Fprintf(tw, "  max consecutive night duties\t%d\n", rs.MaxConsecutiveNightDuties)
			fmt.Fprintf(tw, "  mandatory night rest\t%g h\n", rs.MandatoryNightRestHours)
			fmt.Fprintf(tw, "Cost tariff (%s)\n", tariff.Currency)
			for _, a := range recovery.ActionTypes() {
				fmt.Fprintf(tw, "  %s\t%g\n", a, tariff.Base[a])
			}
			fmt.Fprintf(tw, "  per delay minute\t%g\n", tariff.DelayPerMinute)
			fmt.Fprintf(tw, "Operating policies (%d active)\n", len(active))
			for _, p := range active {
				fmt.Fprintf(tw, "  %s\t%s\n", p.ID, p.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// readCandidateSet decodes a YAML candidate set; action types are case-insensitive
func readCandidateSet(path string, stdin io.Reader) (recovery.CandidateSet, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return recovery.CandidateSet{}, fmt.Errorf("failed to read candidates: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set recovery.CandidateSet
	if err := dec.Decode(&set); err != nil {
		return recovery.CandidateSet{}, fmt.Errorf("malformed candidate file %s: %w", path, err)
	}
	for i := range set.Candidates {
		if a, err := recovery.ParseActionType(string(set.Candidates[i].Type)); err == nil {
			set.Candidates[i].Type = a
		}
	}
	return set, nil
}

func printOutcome(out io.Writer, o *recovery.SelectionOutcome, asJSON bool) error {
	if asJSON {
		data, err := recovery.ExplainJSON(o)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, recovery.Explain(o))
	}

	if o.NoCompliantCandidate() {
		return errNotCompliant
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
