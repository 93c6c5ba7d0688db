package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/nanomodel/cueschema"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

// addValidateCommand adds the validate command
func (cli *CLI) addValidateCommand() {
	validateCmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate and coerce a document against the schema",
		Long: `Validate a JSON document against the schema and print the coerced result.
Undeclared fields are dropped. With --cue the coerced document is also checked
against a CUE schema.

Examples:
  nanomodel --schema users.yaml validate ada.json
  nanomodel --schema users.yaml validate ada.json --cue users.cue --ref '#/#User'`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeValidateCommand(cmd, args[0])
		},
	}
	validateCmd.Flags().String("cue", "", "CUE schema file to check the coerced document against")
	validateCmd.Flags().String("ref", "", "Value inside the CUE schema, e.g. #/#User")
	cli.rootCmd.AddCommand(validateCmd)
}

func (cli *CLI) executeValidateCommand(cmd *cobra.Command, path string) error {
	s, err := cli.loadSchema()
	if err != nil {
		return err
	}
	doc, err := readDocument(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	out, err := s.Validate(doc)
	if err != nil {
		return err
	}

	if cuePath, _ := cmd.Flags().GetString("cue"); cuePath != "" {
		src, err := os.ReadFile(cuePath)
		if err != nil {
			return fmt.Errorf("failed to read CUE schema: %w", err)
		}
		reg := cueschema.NewRegistry()
		if err := reg.AddSchema(string(src), cuePath); err != nil {
			return err
		}
		ref, _ := cmd.Flags().GetString("ref")
		if errs := reg.Validate(out, cuePath+ref); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = types.Message(e)
			}
			return fmt.Errorf("document does not match %s%s:\n  %s", cuePath, ref, strings.Join(msgs, "\n  "))
		}
	}

	cli.logger.Info("document validated", "schema", s.Name())
	return cli.output(cmd.OutOrStdout(), map[string]any(out))
}

// addSchemaCommand adds the schema command
func (cli *CLI) addSchemaCommand() {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the compiled schema",
		Long: `Print the compiled schema in the same form the YAML schema files use.

Examples:
  nanomodel --schema users.yaml schema --format yaml`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cli.loadSchema()
			if err != nil {
				return err
			}
			return cli.output(cmd.OutOrStdout(), map[string]any{
				"name":   s.Name(),
				"fields": describe(s.Root()),
			})
		},
	}
	cli.rootCmd.AddCommand(schemaCmd)
}

// describe renders a node in the YAML schema form.
func describe(n *schema.Node) any {
	switch n.Kind {
	case schema.KindPrimitive:
		if !n.Required && n.Default == nil {
			return n.Type.String()
		}
		spec := map[string]any{"type": n.Type.String()}
		if n.Required {
			spec["required"] = true
		}
		if n.Default != nil {
			spec["default"] = n.Default
		}
		return spec
	case schema.KindArray:
		return []any{describe(n.Elem)}
	case schema.KindEmbedded:
		fields := make(map[string]any, len(n.Order))
		for _, name := range n.Order {
			fields[name] = describe(n.Fields[name])
		}
		return fields
	default:
		return n.Kind.String()
	}
}

// findFlags adds the flags shared by the reading commands.
func findFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("fields", nil, "Only return these fields")
	cmd.Flags().Bool("raw", false, "Return stored documents without schema coercion")
}

func findOptionsFromFlags(cmd *cobra.Command) *nanomodel.FindOptions {
	bag := types.Options{}
	if fields, _ := cmd.Flags().GetStringSlice("fields"); len(fields) > 0 {
		bag["fields"] = fields
	}
	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		bag["directObject"] = true
	}
	if f := cmd.Flags().Lookup("sort"); f != nil {
		if sort, _ := cmd.Flags().GetStringSlice("sort"); len(sort) > 0 {
			bag["sort"] = sort
		}
	}
	if f := cmd.Flags().Lookup("limit"); f != nil {
		bag["limit"], _ = cmd.Flags().GetInt("limit")
		bag["skip"], _ = cmd.Flags().GetInt("skip")
	}
	return nanomodel.ParseFindOptions(bag)
}

// addGetCommand adds the get command
func (cli *CLI) addGetCommand() {
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a document by id",
		Long: `Retrieve a document by its 24 character hex id.

Examples:
  nanomodel --schema users.yaml get 64b7f0c2a1b2c3d4e5f60718`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := cli.openModel(cmd.Context())
			if err != nil {
				return err
			}
			inst, err := m.FindByID(cmd.Context(), args[0], findOptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			return cli.output(cmd.OutOrStdout(), map[string]any(inst.Document()))
		},
	}
	findFlags(getCmd)
	cli.rootCmd.AddCommand(getCmd)
}

// addFindCommand adds the find command
func (cli *CLI) addFindCommand() {
	findCmd := &cobra.Command{
		Use:   "find [query]",
		Short: "List documents matching a query",
		Long: `List documents matching a JSON query. Without a query every document is
returned.

Examples:
  nanomodel --schema users.yaml find
  nanomodel --schema users.yaml find '{"role": "admin"}' --fields name,email
  nanomodel --schema users.yaml find '{"age": {"$gte": 30}}' --sort -age --limit 5`,

		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			m, err := cli.openModel(cmd.Context())
			if err != nil {
				return err
			}
			found, err := m.Find(cmd.Context(), query, findOptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			cli.logger.Info("find", "matched", len(found))
			return cli.output(cmd.OutOrStdout(), documents(found))
		},
	}
	findFlags(findCmd)
	findCmd.Flags().StringSlice("sort", nil, "Sort fields, prefix with - for descending")
	findCmd.Flags().Int("limit", 0, "Limit number of results")
	findCmd.Flags().Int("skip", 0, "Skip this many results")
	cli.rootCmd.AddCommand(findCmd)
}

// addCountCommand adds the count command
func (cli *CLI) addCountCommand() {
	countCmd := &cobra.Command{
		Use:   "count [query]",
		Short: "Count documents matching a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			m, err := cli.openModel(cmd.Context())
			if err != nil {
				return err
			}
			n, err := m.Count(cmd.Context(), query)
			if err != nil {
				return err
			}
			return cli.output(cmd.OutOrStdout(), map[string]any{"count": n})
		},
	}
	cli.rootCmd.AddCommand(countCmd)
}

// addInsertCommand adds the insert command
func (cli *CLI) addInsertCommand() {
	insertCmd := &cobra.Command{
		Use:   "insert <file|->",
		Short: "Validate and insert a document",
		Long: `Validate a JSON document against the schema and store it. The new id is
printed.

Examples:
  nanomodel --schema users.yaml --data app.json insert ada.json
  echo '{"name": "Bob"}' | nanomodel --schema users.yaml insert -`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			m, err := cli.openModel(cmd.Context())
			if err != nil {
				return err
			}
			inst, err := m.New(doc)
			if err != nil {
				return err
			}
			id, err := inst.Save(cmd.Context(), nil)
			if err != nil {
				return err
			}
			cli.logger.Info("document inserted", "id", id.Hex())
			return cli.output(cmd.OutOrStdout(), map[string]any{types.IDField: id})
		},
	}
	cli.rootCmd.AddCommand(insertCmd)
}

// addRemoveCommand adds the remove command
func (cli *CLI) addRemoveCommand() {
	removeCmd := &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a document by id, or every document matching --where",
		Long: `Remove one document by id, or all documents matching a JSON query.

Examples:
  nanomodel --schema users.yaml remove 64b7f0c2a1b2c3d4e5f60718
  nanomodel --schema users.yaml remove --where '{"role": "guest"}'`,

		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, _ := cmd.Flags().GetString("where")
			if (len(args) == 0) == (where == "") {
				return fmt.Errorf("give either an id or --where")
			}
			m, err := cli.openModel(cmd.Context())
			if err != nil {
				return err
			}

			removed := 1
			if where != "" {
				query, err := parseDocument([]byte(where))
				if err != nil {
					return err
				}
				if removed, err = m.RemoveWhere(cmd.Context(), query); err != nil {
					return err
				}
			} else {
				inst, err := m.FindByID(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				if err := inst.Remove(cmd.Context()); err != nil {
					return err
				}
			}
			cli.logger.Info("documents removed", "removed", removed)
			return cli.output(cmd.OutOrStdout(), map[string]any{"removed": removed})
		},
	}
	removeCmd.Flags().String("where", "", "Remove every document matching this JSON query")
	cli.rootCmd.AddCommand(removeCmd)
}

func queryArg(args []string) (types.Document, error) {
	if len(args) == 0 {
		return types.Document{}, nil
	}
	return parseDocument([]byte(args[0]))
}
