package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/model"
)

var (
	addClients []string
	addCommand string
	addArgs    []string
	addEnv     []string
	addURL     string
	addHeaders []string
	addSSE     bool
	yesFlag    bool
)

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a server to one or more clients",
	Long: `Write a server entry into the config file of each --client. An existing
entry with the same name is replaced after confirmation.

Examples:
  mcpm add filesystem --client cursor --client cc-project \
    --command npx --arg -y --arg @modelcontextprotocol/server-filesystem --arg .
  mcpm add github --client vscode --command github-mcp --env GITHUB_TOKEN=xyz
  mcpm add docs --client windsurf --url https://docs.example.com/mcp`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	f := addCmd.Flags()
	f.StringArrayVarP(&addClients, "client", "c", nil, "Target client label (repeatable)")
	f.StringVar(&addCommand, "command", "", "Command to launch a stdio server")
	f.StringArrayVar(&addArgs, "arg", nil, "Command argument (repeatable, order kept)")
	f.StringArrayVar(&addEnv, "env", nil, "Environment variable KEY=VALUE (repeatable)")
	f.StringVar(&addURL, "url", "", "URL of a network server")
	f.StringArrayVar(&addHeaders, "header", nil, "HTTP header KEY=VALUE (repeatable)")
	f.BoolVar(&addSSE, "sse", false, "The URL speaks the SSE transport")
	f.BoolVarP(&yesFlag, "yes", "y", false, "Do not ask before replacing an existing entry")
	addCmd.MarkFlagsMutuallyExclusive("command", "url")
	addCmd.MarkFlagsOneRequired("command", "url")
	_ = addCmd.MarkFlagRequired("client")
}

func runAdd(cmd *cobra.Command, args []string) error {
	srv, err := serverFromFlags(args[0])
	if err != nil {
		return err
	}
	kinds, err := parseClients(addClients)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}

	res := a.scan()
	var replacing []model.ClientKind
	for _, k := range res.ClientsWithServer(srv.Name) {
		for _, t := range kinds {
			if k == t {
				replacing = append(replacing, k)
			}
		}
	}
	if len(replacing) > 0 && !yesFlag {
		ok, err := confirm(fmt.Sprintf("Replace existing %q in %s?", srv.Name, joinLabels(replacing)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	n, err := a.applyEach(kinds, func(model.ClientKind) configwriter.Change { return configwriter.Add(srv) })
	if n > 0 {
		fmt.Printf("Added %q to %s\n", srv.Name, plural(n, "client"))
	}
	return err
}

func serverFromFlags(name string) (model.Server, error) {
	if name == "" {
		return model.Server{}, errors.New("server name is empty")
	}
	env, err := parsePairs("env", addEnv)
	if err != nil {
		return model.Server{}, err
	}
	headers, err := parsePairs("header", addHeaders)
	if err != nil {
		return model.Server{}, err
	}

	srv := model.Server{Name: name}
	switch {
	case addCommand != "":
		if len(addHeaders) > 0 || addSSE {
			return model.Server{}, errors.New("--header and --sse apply to --url servers only")
		}
		srv.Transport = model.Transport{Kind: model.TransportStdio, Command: addCommand, Args: addArgs, Env: env}
	case addURL != "":
		if len(addArgs) > 0 || len(addEnv) > 0 {
			return model.Server{}, errors.New("--arg and --env apply to --command servers only")
		}
		kind := model.TransportHTTP
		if addSSE {
			kind = model.TransportSSE
		}
		srv.Transport = model.Transport{Kind: kind, URL: addURL, Headers: headers}
	default:
		return model.Server{}, errors.New("one of --command or --url is required")
	}
	return srv, nil
}
