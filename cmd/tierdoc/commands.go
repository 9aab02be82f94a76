package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guyvdb/tierdoc/database"
	"github.com/guyvdb/tierdoc/document"
	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
	"github.com/guyvdb/tierdoc/types"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database, or adopt an existing one of the same name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if a.cfg.Database == "" {
				return errors.New("no database given, use --database")
			}
			attrs, blobs, done, err := a.stores()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := done(); err == nil {
					err = cerr
				}
				a.reportMetrics()
			}()

			db := a.newDatabase(attrs, blobs)
			defer db.Close()
			if err := db.Init(cmd.Context(), a.cfg.Database); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "database %s ready\n", db.Name())
			return nil
		},
	}
}

func newDropCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Delete the database with all its documents and objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				if err := db.Remove(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "database %s removed\n", a.cfg.Database)
				return nil
			})
		},
	}
}

// readValue builds the value given to put, from the argument, a file or
// stdin ("-").
func (a *app) readValue(kind, file string, args []string) (types.Value, error) {
	k, err := types.ParseKind(kind)
	if err != nil {
		return types.Value{}, err
	}

	var text string
	switch {
	case file == "-":
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return types.Value{}, err
		}
		text = string(data)
	case file != "":
		// The document file helpers read the file themselves.
		return types.Value{}, nil
	case len(args) == 1:
		text = args[0]
	default:
		return types.Value{}, errors.New("no value given, pass one or use --file")
	}
	return types.ParseScalar(k, text)
}

func setFromFile(doc *document.Document, item, kind, file string) error {
	k, err := types.ParseKind(kind)
	if err != nil {
		return err
	}
	switch k {
	case types.KindXML:
		_, err = doc.SetXMLFromFile(item, file)
	case types.KindJSON:
		_, err = doc.SetJSONFromFile(item, file)
	case types.KindText:
		_, err = doc.SetFromFile(item, file)
	default:
		err = fmt.Errorf("--file needs kind text, xml or json, not %s", k)
	}
	return err
}

func newPutCommand(a *app) *cobra.Command {
	var (
		kind string
		file string
	)
	cmd := &cobra.Command{
		Use:   "put <document> <item> [value]",
		Short: "Set one item of a document, creating the document if needed",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, item := args[0], args[1]
			v, err := a.readValue(kind, file, args[2:])
			if err != nil {
				return err
			}

			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				ctx := cmd.Context()
				doc, err := db.GetDocument(ctx, name, false)
				if errors.Is(err, fault.ErrDocumentNotFound) {
					doc, err = db.CreateDocument(name)
				}
				if err != nil {
					return err
				}

				if file != "" && file != "-" {
					err = setFromFile(doc, item, kind, file)
				} else {
					_, err = doc.Set(item, v)
				}
				if err != nil {
					return err
				}
				if err := doc.Save(ctx); err != nil {
					return err
				}

				it := doc.Item(item)
				where := "inline"
				if it.IsExternalized() {
					where = it.Path()
				}
				fmt.Fprintf(a.stdout, "%s/%s %s %s\n", name, item, it.Kind(), where)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "text", "Value kind: integer, decimal, double, datetime, text, xml or json.")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the value from a file, - for stdin.")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <document> [item]",
		Short: "Print a document, or one of its items",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				ctx := cmd.Context()
				doc, err := db.GetDocument(ctx, args[0], len(args) == 1)
				if err != nil {
					return err
				}

				if len(args) == 2 {
					v, ok, err := doc.Get(ctx, args[1])
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("document %s has no item %s", args[0], args[1])
					}
					fmt.Fprintln(a.stdout, v.String())
					return nil
				}

				w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				for _, it := range doc.Items() {
					v, err := it.Value(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", it.Name(), it.Kind(), summarize(v.String()))
				}
				return w.Flush()
			})
		},
	}
}

// summarize shortens s to one line for listings.
func summarize(s string) string {
	const width = 60
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i] + "..."
		}
		if i >= width {
			return s[:i] + "..."
		}
	}
	return s
}

func newRmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <document>...",
		Short: "Delete documents together with their stored payloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				for _, name := range args {
					if err := db.DeleteDocument(cmd.Context(), name); err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "%s removed\n", name)
				}
				return nil
			})
		},
	}
}

func newLsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the names of all documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				names, err := db.GetAllDocuments(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(a.stdout, n)
				}
				return nil
			})
		},
	}
}

func newSearchCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <filter>",
		Short: "List documents matching a backend filter expression",
		Long: `List documents matching a filter expression. The expression is handed to
the backend as is: a SimpleDB select predicate for the aws backend, an
expression over attribute names and itemName for the bolt backend.
Attribute values are compared in their stored form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				docs, err := db.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				for _, doc := range docs {
					fmt.Fprintln(a.stdout, doc.Name())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of documents, 0 for no limit.")
	return cmd
}

func newObjectsCommand(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "List the keys of all objects in the database's bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDatabase(cmd.Context(), func(db *database.Database) error {
				keys, err := db.Objects(cmd.Context())
				if err != nil {
					return err
				}
				if !long {
					for _, k := range keys {
						fmt.Fprintln(a.stdout, k)
					}
					return nil
				}
				// Folder markers have no owning document.
				w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				for _, k := range keys {
					doc, item, err := store.ParseBlobKey(k)
					if err != nil {
						doc, item = "-", "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", k, doc, item)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show the document and item owning each payload.")
	return cmd
}
