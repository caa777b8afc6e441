/*
Copyright © 2019 the spacetime authors.
This file is part of spacetime.

spacetime is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spacetime is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spacetime.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package spacetimeutil contains the command-line interface to spacetime.
package spacetimeutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime"
	"github.com/spatialmodel/spacetime/timeaxis"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger used by the commands.
var Log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	Log.Out = os.Stderr

	inputCmds := []*pflag.FlagSet{remakeCmd.Flags(), resampleCmd.Flags(), selectCmd.Flags(), infoCmd.Flags(), exportCmd.Flags()}
	outputCmds := []*pflag.FlagSet{makeCmd.Flags(), remakeCmd.Flags(), resampleCmd.Flags(), selectCmd.Flags()}

	// Options are the configuration options available to spacetime.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print: one of
              debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MaxRetries",
			usage: `
              MaxRetries is the number of times a failed download or upload
              is retried, with exponential backoff, before giving up.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Sources",
			usage: `
              Sources are the paths to the raster files (NetCDF or TIFF) to
              assemble, in order. Paths can be URLs ('http://', 'gs://',
              's3://', or 'file://') and can include environment variables.`,
			shorthand:  "s",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "OrganizeFiles",
			usage: `
              OrganizeFiles specifies whether the files in Sources represent
              successive time steps ('time') or different variables ('var').`,
			defaultVal: "time",
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "OrganizeBands",
			usage: `
              OrganizeBands specifies whether the bands within each file
              represent successive time steps ('time') or different variables ('var').`,
			defaultVal: "time",
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "VarNames",
			usage: `
              VarNames are the names of the output variables. If empty,
              variables are named by their position.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "NoData",
			usage: `
              NoData is the no-data value recorded for sources that do not
              declare one.`,
			defaultVal: spacetime.DefaultNoData,
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "Time.Start",
			usage: `
              Time.Start is the date of the first time step, for example
              '2000-01-01'. If empty, time steps are numbered from zero.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "Time.Scale",
			usage: `
              Time.Scale is the calendar unit between time steps: 'day',
              'month', or 'year'. Monthly and yearly steps fall on the last
              day of the period.`,
			defaultVal: string(timeaxis.Month),
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "Time.Step",
			usage: `
              Time.Step is the number of Time.Scale units between time steps.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{makeCmd.Flags()},
		},
		{
			name: "InputCube",
			usage: `
              InputCube is the path to an existing cube file. It can be a URL
              and can include environment variables.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   inputCmds,
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the cube should be written. It can
              be a blob storage URL and can include environment variables.`,
			shorthand:  "o",
			defaultVal: "spacetime_output.nc",
			flagsets:   outputCmds,
		},
		{
			name: "Resample.Scale",
			usage: `
              Resample.Scale is the calendar unit to aggregate to: 'day',
              'month', or 'year'.`,
			defaultVal: string(timeaxis.Month),
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
		{
			name: "Resample.Method",
			usage: `
              Resample.Method is the aggregation method: 'mean' or 'max'.`,
			defaultVal: spacetime.Mean,
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
		{
			name: "Select.From",
			usage: `
              Select.From is the first date to keep. If empty, the selection
              starts at the beginning of the cube.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{selectCmd.Flags()},
		},
		{
			name: "Select.To",
			usage: `
              Select.To is the last date to keep. If empty, the selection
              runs to the end of the cube.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{selectCmd.Flags()},
		},
		{
			name: "Select.Scale",
			usage: `
              Select.Scale, if set, keeps only time steps whose day of month,
              month, or year ('day', 'month', or 'year') equals Select.Element.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{selectCmd.Flags()},
		},
		{
			name: "Select.Element",
			usage: `
              Select.Element is the calendar element matched by Select.Scale.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{selectCmd.Flags()},
		},
		{
			name: "Export.OutputFile",
			usage: `
              Export.OutputFile is the path to the table to write. It can be a
              blob storage URL and can include environment variables.`,
			defaultVal: "spacetime_records.csv",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Export.Format",
			usage: `
              Export.Format is the table format: 'csv' or 'xlsx'. If empty, the
              format is chosen from the extension of Export.OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SPACETIME")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(makeCmd)
	Root.AddCommand(remakeCmd)
	Root.AddCommand(resampleCmd)
	Root.AddCommand(selectCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(exportCmd)
	Root.AddCommand(batchCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("spacetime: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("spacetime: invalid LogLevel: %v", err)
	}
	Log.SetLevel(lvl)
	return nil
}

// expandStringSlice reads a list option and expands any environment
// variables in it.
func expandStringSlice(name string) ([]string, error) {
	s, err := cast.ToStringSliceE(Cfg.Get(name))
	if err != nil {
		return nil, fmt.Errorf("spacetime: reading '%s': %v", name, err)
	}
	o := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			o = append(o, os.ExpandEnv(v))
		}
	}
	return o, nil
}

// getTime reads an optional date option. An empty option is the zero time.
func getTime(name string) (time.Time, error) {
	s := Cfg.GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return t, fmt.Errorf("spacetime: invalid date for '%s': %v", name, err)
	}
	return t, nil
}

// newTransfer returns a Transfer configured from Cfg. The caller must
// close it.
func newTransfer() *Transfer {
	return NewTransfer(Log, Cfg.GetInt("MaxRetries"))
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "spacetime",
	Short: "Assemble raster files into space-time data cubes.",
	Long: `spacetime assembles georeferenced raster files into (time, lat, lon)
data cubes stored as NetCDF files, and rescales, subsets, and exports them.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SPACETIME_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of spacetime.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("spacetime v%s\n", spacetime.Version)
	},
	DisableAutoGenTag: true,
}

var makeCmd = &cobra.Command{
	Use:   "make",
	Short: "Assemble raster files into a cube.",
	Long: `make assembles the files in Sources into a cube according to
OrganizeFiles and OrganizeBands and writes it to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := expandStringSlice("Sources")
		if err != nil {
			return err
		}
		varNames, err := expandStringSlice("VarNames")
		if err != nil {
			return err
		}
		nodata := Cfg.GetFloat64("NoData")
		t := newTransfer()
		defer t.Close()
		_, err = Make(context.Background(), t, Job{
			Sources:       sources,
			OrganizeFiles: Cfg.GetString("OrganizeFiles"),
			OrganizeBands: Cfg.GetString("OrganizeBands"),
			VarNames:      varNames,
			NoData:        &nodata,
			Time: TimeConfig{
				Start: Cfg.GetString("Time.Start"),
				Scale: Cfg.GetString("Time.Scale"),
				Step:  Cfg.GetInt("Time.Step"),
			},
			OutputFile: os.ExpandEnv(Cfg.GetString("OutputFile")),
		})
		return err
	},
	DisableAutoGenTag: true,
}

var remakeCmd = &cobra.Command{
	Use:   "remake",
	Short: "Write an existing cube again.",
	Long: `remake loads InputCube and writes it to OutputFile without
changing its data. The cube must have a timestamp time axis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTransfer()
		defer t.Close()
		_, err := Remake(context.Background(), t,
			os.ExpandEnv(Cfg.GetString("InputCube")),
			os.ExpandEnv(Cfg.GetString("OutputFile")))
		return err
	},
	DisableAutoGenTag: true,
}

var resampleCmd = &cobra.Command{
	Use:   "resample",
	Short: "Aggregate a cube in time.",
	Long: `resample loads InputCube, aggregates it to Resample.Scale periods
using Resample.Method, and writes the result to OutputFile. Missing values
make the aggregate of their period missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTransfer()
		defer t.Close()
		_, err := Resample(context.Background(), t,
			os.ExpandEnv(Cfg.GetString("InputCube")),
			os.ExpandEnv(Cfg.GetString("OutputFile")),
			Cfg.GetString("Resample.Scale"),
			Cfg.GetString("Resample.Method"))
		return err
	},
	DisableAutoGenTag: true,
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select time steps from a cube.",
	Long: `select loads InputCube, keeps the time steps between Select.From and
Select.To whose calendar element matches Select.Scale and Select.Element, and
writes the result to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := getTime("Select.From")
		if err != nil {
			return err
		}
		to, err := getTime("Select.To")
		if err != nil {
			return err
		}
		sel := spacetime.Selection{
			From:    from,
			To:      to,
			Element: Cfg.GetInt("Select.Element"),
		}
		if s := Cfg.GetString("Select.Scale"); s != "" {
			if sel.Scale, err = timeaxis.ParseScale(s); err != nil {
				return err
			}
		}
		t := newTransfer()
		defer t.Close()
		_, err = Select(context.Background(), t,
			os.ExpandEnv(Cfg.GetString("InputCube")),
			os.ExpandEnv(Cfg.GetString("OutputFile")), sel)
		return err
	},
	DisableAutoGenTag: true,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe a cube.",
	Long:  `info prints the dimensions, variables, and georeferencing of InputCube.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTransfer()
		defer t.Close()
		return Info(context.Background(), t, os.ExpandEnv(Cfg.GetString("InputCube")), cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a cube as a table.",
	Long: `export writes InputCube to Export.OutputFile as a CSV file or
spreadsheet with one row per latitude, longitude, variable, and time step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTransfer()
		defer t.Close()
		return Export(context.Background(), t,
			os.ExpandEnv(Cfg.GetString("InputCube")),
			os.ExpandEnv(Cfg.GetString("Export.OutputFile")),
			Cfg.GetString("Export.Format"))
	},
	DisableAutoGenTag: true,
}

var batchCmd = &cobra.Command{
	Use:   "batch jobs.toml",
	Short: "Run several make jobs.",
	Long: `batch runs the make jobs listed in a TOML file. Each [[Job]] table
takes the keys Sources, OrganizeFiles, OrganizeBands, VarNames, NoData,
OutputFile, and a [Job.Time] table with Start, Scale, and Step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := newTransfer()
		defer t.Close()
		_, err := Batch(context.Background(), t, os.ExpandEnv(args[0]))
		return err
	},
	DisableAutoGenTag: true,
}
