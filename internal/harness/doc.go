// Package harness runs declarative simulation scenarios end to end.
//
// A scenario names a set of simulations, the models each one wires onto its
// clock, and assertions over the result file once the run group completes.
// Scenarios drive the same runner, clock and store used in production, so a
// passing scenario exercises the full path from event dispatch to SQLite.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: daily_report
//	description: "Accumulated day of year is reported each day"
//	run_id: run-daily
//	workers: 2
//	simulations:
//	  - name: base
//	    start: "2000-01-01"
//	    end: "2000-01-05"
//	    models:
//	      - type: accumulator
//	        variable: DaySum
//	        source: Clock.DayOfYear
//	      - type: report
//	        table: Daily
//	        variables: [Clock.Today as Date, Clock.DayOfYear, DaySum]
//	assertions:
//	  - type: row_count
//	    table: Daily
//	    simulation: base
//	    count: 5
//
// # Model Types
//
//   - summary: lifecycle messages
//   - weather: synthetic daily weather (mean_t, amplitude, rain)
//   - accumulator: running sum of source published as variable
//   - report: captures variables into table on event (EndOfDay by default)
//
// # Assertion Types
//
//   - table_exists: the named table exists in the result file
//   - row_count: a table holds exactly count rows for a simulation ("*" for all)
//   - message_contains: a simulation logged a message containing text
//   - simulations: the registry lists exactly the given names, in id order
//   - completed: the run group completed exactly the given simulations
//
// # Golden Files
//
// RunWithGolden renders a result table as CSV and compares it with
// testdata/golden/<scenario>.golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
