package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/config"
	"github.com/polydawn/sneakernet/transfer"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format  string // Output api format, eg. json
	Verbose bool   // Debug logging on stderr, regardless of SNEAKERNET_LOG_LEVEL
	Create  struct {
		RepoPath   string
		MediumPath string
		Squash     bool
		Message    string
	}
	Apply struct {
		RepoPath   string
		MediumPath string
	}
}

func configureCreate(cli *baseCLI, appCreate *kingpin.CmdClause) {
	appCreate.Arg("repo-path", "Repository to export").
		Required().
		StringVar(&cli.Create.RepoPath)
	appCreate.Arg("usb-path", "Transfer medium directory").
		Required().
		StringVar(&cli.Create.MediumPath)
	appCreate.Flag("squash", "Export the working tree as one commit, without history").
		BoolVar(&cli.Create.Squash)
	appCreate.Arg("message", "Commit message for --squash (default \""+transfer.DefaultSquashMessage+"\")").
		StringVar(&cli.Create.Message)
}

func configureApply(cli *baseCLI, appApply *kingpin.CmdClause) {
	appApply.Arg("repo-path", "Repository to merge into").
		Required().
		StringVar(&cli.Apply.RepoPath)
	appApply.Arg("usb-path", "Transfer medium directory").
		Required().
		StringVar(&cli.Apply.MediumPath)
}

/*
	Blocks until a sigint is received or ctx ends, then calls cancel.
*/
func CancelOnInterrupt(ctx context.Context, cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	defer signal.Stop(signalChan)
	select {
	case <-signalChan:
		cancel()
	case <-ctx.Done():
	}
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) sneakernet.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go CancelOnInterrupt(ctx, cancel)

	cli := baseCLI{}

	app := kingpin.New("sneakernet", "Move git history between disconnected machines on removable media")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("verbose", "Log every step to stderr").
		Short('v').
		BoolVar(&cli.Verbose)

	appCreate := app.Command("create-bundle", "write a bundle of new history (or a squashed snapshot) to the medium")
	configureCreate(&cli, appCreate)

	appApply := app.Command("apply-bundle", "verify and merge the bundle on the medium")
	configureApply(&cli, appApply)

	terminated, termStatus := false, 0
	app.Terminate(func(status int) {
		terminated, termStatus = true, status
	})
	cmd, err := app.Parse(args[1:])
	if terminated {
		// kingpin terminates cleanly for a bare invocation too; only asking for help is a success.
		if termStatus == 0 && !helpRequested(args[1:]) {
			return sneakernet.ExitFailure
		}
		return sneakernet.ExitCode(termStatus)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return sneakernet.ExitFailure
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		SerializeResult(cli.Format, nil, err, stdout, stderr)
		return sneakernet.ExitCodeFor(err)
	}
	logLevel := cfg.LogLevel
	if cli.Verbose {
		logLevel = "debug"
	}
	log, err := newLogger(logLevel, stderr)
	if err != nil {
		err = Errorf(sneakernet.ErrUsage, "invalid log level %q: %s", logLevel, err)
		SerializeResult(cli.Format, nil, err, stdout, stderr)
		return sneakernet.ExitCodeFor(err)
	}
	defer log.Sync()
	opts := transfer.Options{Config: &cfg, Log: log}

	var result *sneakernet.Result
	switch cmd {
	case appCreate.FullCommand():
		result, err = transfer.Produce(ctx, transfer.ProduceRequest{
			RepoPath:   cli.Create.RepoPath,
			MediumPath: cli.Create.MediumPath,
			Squash:     cli.Create.Squash,
			Message:    cli.Create.Message,
		}, opts)
	case appApply.FullCommand():
		result, err = transfer.Consume(ctx, transfer.ConsumeRequest{
			RepoPath:   cli.Apply.RepoPath,
			MediumPath: cli.Apply.MediumPath,
		}, opts)
	default:
		err = Errorf(sneakernet.ErrUsage, "unknown command %q", cmd)
	}
	SerializeResult(cli.Format, result, err, stdout, stderr)
	return sneakernet.ExitCodeFor(err)
}

// True if args ask for usage: a help flag before any "--", or the help command.
func helpRequested(args []string) bool {
	positional := false
	for _, arg := range args {
		switch {
		case arg == "--":
			return false
		case arg == "-h", arg == "--help", arg == "--help-long", arg == "--help-man":
			return true
		case arg == "help" && !positional:
			return true
		case !strings.HasPrefix(arg, "-"):
			positional = true
		}
	}
	return false
}

func SerializeResult(format string, result *sneakernet.Result, resultErr error, stdout io.Writer, stderr io.Writer) {
	ev := sneakernet.Event{}
	if resultErr == nil {
		ev.Result = result
	}
	ev.SetError(resultErr)
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, sneakernet.Atlas)
		err := marshaller.Marshal(&ev)
		if err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
	case FmtDumb:
		if resultErr != nil {
			color.New(color.FgRed, color.Bold).Fprint(stderr, "error: ")
			fmt.Fprintf(stderr, "%s (%s)\n", ev.Error.Message, ev.Error.Category)
		} else if result != nil {
			fmt.Fprintln(stdout, describe(result))
		}
	default:
		panic(fmt.Errorf("sneakernet: invalid format %s", format))
	}
}

// One line for a person to read.
func describe(result *sneakernet.Result) string {
	switch result.Kind {
	case sneakernet.Kind_UpToDate:
		return fmt.Sprintf("Nothing to bundle: %s is unchanged since %s", result.Repo, result.Watermark)
	case sneakernet.Kind_Full, sneakernet.Kind_Incremental, sneakernet.Kind_Squash:
		if result.Merged != "" {
			return fmt.Sprintf("Applied %s bundle %s (merged %s)", result.Kind, result.Artifact, result.Merged)
		}
		return fmt.Sprintf("Bundle created at %s (%s)", result.Artifact, humanize.Bytes(uint64(result.Size)))
	default:
		return fmt.Sprintf("%s: %s", result.Kind, result.Artifact)
	}
}
