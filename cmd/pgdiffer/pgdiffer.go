package main

import (
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	pgdiffer "github.com/mitar/pg-differ"
	"github.com/mitar/pg-differ/database"
	"github.com/mitar/pg-differ/database/postgres"
	"github.com/mitar/pg-differ/util"
)

var version = "dev"

type options struct {
	File           string        `short:"f" long:"file" description:"Schema file path" value-name:"filename" default:"schema.yml"`
	User           string        `short:"U" long:"user" description:"PostgreSQL user name" value-name:"username" default:"postgres"`
	Password       string        `short:"W" long:"password" description:"PostgreSQL user password, overridden by $PGPASSWORD" value-name:"password"`
	Host           string        `short:"h" long:"host" description:"Host or socket directory to connect to the PostgreSQL server" value-name:"hostname" default:"127.0.0.1"`
	Port           int           `short:"p" long:"port" description:"Port used for the connection" value-name:"port" default:"5432"`
	Prompt         bool          `long:"password-prompt" description:"Force a password prompt"`
	SslMode        string        `long:"sslmode" description:"libpq sslmode" value-name:"sslmode"`
	Schema         string        `long:"schema" description:"Default schema for unqualified names" value-name:"schema" default:"public"`
	DryRun         bool          `long:"dry-run" description:"Don't run the statements, just show them"`
	NoTransaction  bool          `long:"no-transaction" description:"Do not wrap the run in a transaction"`
	RetryAttempts  int           `long:"retry-attempts" description:"Connection attempts before giving up, 0 retries forever" value-name:"count" default:"3"`
	RetryDelay     time.Duration `long:"retry-delay" description:"Delay between connection attempts" value-name:"duration" default:"1s"`
	Debug          bool          `long:"debug" description:"Dump the loaded definitions before syncing"`
	Help           bool          `long:"help" description:"Show this help"`
	Version        bool          `long:"version" description:"Show this version"`
}

func main() {
	util.InitSlog()

	var opts options
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[OPTIONS] database"
	args, err := parser.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.Help {
		parser.WriteHelp(os.Stdout)
		return
	}
	if opts.Version {
		fmt.Println(version)
		return
	}
	if len(args) != 1 {
		fmt.Printf("Expected one database argument, got: %v\n\n", args)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	password := opts.Password
	if pgPassword, ok := os.LookupEnv("PGPASSWORD"); ok {
		password = pgPassword
	}
	if opts.Prompt {
		fmt.Printf("Enter Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		password = string(raw)
	}

	loaded, err := loadSchemaFile(opts.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read '%s': %s\n", opts.File, err)
		os.Exit(1)
	}
	if opts.Debug {
		pp.Println(loaded)
	}

	client := postgres.NewClient(database.Config{
		DbName:   args[0],
		User:     opts.User,
		Password: password,
		Host:     opts.Host,
		Port:     opts.Port,
		SslMode:  opts.SslMode,
	})
	differ, err := pgdiffer.New(pgdiffer.Options{
		Client:        client,
		Reader:        postgres.NewStructureReader(client, opts.Schema),
		Retry:         database.RetryPolicy{Attempts: opts.RetryAttempts, Delay: opts.RetryDelay},
		DefaultSchema: opts.Schema,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	for _, sequence := range loaded.Sequences {
		if err := differ.Define(pgdiffer.KindSequence, sequence); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	for _, table := range loaded.Tables {
		if err := differ.Define(pgdiffer.KindTable, table); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	result, err := differ.Sync(pgdiffer.SyncOptions{
		WithoutTransaction: opts.NoTransaction,
		DryRun:             opts.DryRun,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if opts.DryRun {
		fmt.Println("-- dry run --")
		for _, statement := range result.Statements {
			fmt.Printf("%s;\n", statement)
		}
	}
}
