package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-index/internal/gateway"
)

// withService runs fn against a gateway wired from the resolved config.
func withService(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	st, err := newStack(ctx, cc, serviceDeps{})
	if err != nil {
		return err
	}
	defer st.Close(cc.Logger)

	return fn(ctx, cc, st.Service)
}

// readContent reads text from a file, or from stdin for "" and "-",
// refusing anything larger than the configured upload limit.
func readContent(cmd *cobra.Command, cc *CLIContext, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()

	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		r = f
	}

	limit := cc.Cfg.MaxUploadBytes()

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}

	if int64(len(data)) > limit {
		return "", fmt.Errorf("content exceeds %s", formatSize(limit))
	}

	return string(data), nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				path := ""
				if len(args) > 0 {
					path = args[0]
				}

				listing, err := svc.List(ctx, path)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, listing)
				}

				rows := make([][]string, 0, len(listing.Items))
				for i := range listing.Items {
					it := &listing.Items[i]

					name, size := it.Name, formatSize(it.Size)
					if it.IsFolder {
						name, size = name+"/", "-"
					}

					rows = append(rows, []string{name, size, formatTime(it.ModifiedAt), it.ID})
				}

				printTable(cc.Out, []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows)

				return nil
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "put <local-file> [folder]",
		Short: "Upload a file into a folder, replacing any file of the same name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()

				info, err := f.Stat()
				if err != nil {
					return fmt.Errorf("stat %s: %w", args[0], err)
				}

				in := gateway.UploadFileInput{Filename: name, Content: f, Size: info.Size()}
				if in.Filename == "" {
					in.Filename = filepath.Base(args[0])
				}

				if len(args) > 1 {
					in.Folder = args[1]
				}

				res, err := svc.UploadFile(ctx, in)
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res, "ID: "+res.Item.ID)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "remote file name (default: local base name)")

	return cmd
}

func newImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image <local-file>",
		Short: "Upload an image to the image hosting area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()

				info, err := f.Stat()
				if err != nil {
					return fmt.Errorf("stat %s: %w", args[0], err)
				}

				res, err := svc.UploadImage(ctx, gateway.UploadImageInput{
					Filename: filepath.Base(args[0]),
					Content:  f,
					Size:     info.Size(),
				})
				if err != nil {
					return err
				}

				details := []string{"URL:    " + res.ViewURL}
				if res.DeleteURL != "" {
					details = append(details, "Delete: "+res.DeleteURL)
				}

				return cc.printResult(res.Message, res, details...)
			})
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder inside an existing folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				token, err := svc.IssuePathToken(args[0])
				if err != nil {
					return err
				}

				res, err := svc.CreateFolder(ctx, gateway.CreateFolderInput{ParentToken: token, Name: args[1]})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res, "ID: "+res.Item.ID)
			})
		},
	}
}

func newNewCmd() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "new <folder> <name>",
		Short: "Create a Markdown text file (\".md\" is appended to name)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				content, err := readContent(cmd, cc, from)
				if err != nil {
					return err
				}

				token, err := svc.IssuePathToken(args[0])
				if err != nil {
					return err
				}

				res, err := svc.CreateTextFile(ctx, gateway.CreateTextFileInput{
					ParentToken: token,
					Name:        args[1],
					Content:     content,
				})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res, "ID: "+res.Item.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&from, "file", "f", "-", `read content from file ("-" for stdin)`)

	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <item-id>",
		Short: "Print a text file by item ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				tf, err := svc.ReadTextFile(ctx, args[0])
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, tf)
				}

				_, err = io.WriteString(cc.Out, tf.Content)

				return err
			})
		},
	}
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <item-id> [file]",
		Short: "Replace a text file's content, read from file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				from := ""
				if len(args) > 1 {
					from = args[1]
				}

				content, err := readContent(cmd, cc, from)
				if err != nil {
					return err
				}

				res, err := svc.EditTextFile(ctx, gateway.EditTextFileInput{ItemID: args[0], Content: content})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res)
			})
		},
	}
}

func newLockCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "lock <folder>",
		Short: "Password-protect a folder",
		Long: `Write a lock marker into the folder. Files below it are only served on
/view with the password. Without --password the default password is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				token, err := svc.IssuePathToken(args[0])
				if err != nil {
					return err
				}

				res, err := svc.LockFolder(ctx, gateway.LockFolderInput{FolderToken: token, Password: password})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res)
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "folder password")

	return cmd
}

func newRmCmd() *cobra.Command {
	var byToken bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete an item (moves it to the OneDrive recycle bin)",
		Long: `Delete the item at path. The delete is conditional on the version read
just before, so an item changed in between is left alone.

With --token the argument is a delete token, such as the one in an image
delete URL, instead of a path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				token := args[0]

				if byToken {
					// Accept a whole delete URL as well as the bare token.
					token = token[strings.LastIndex(token, "/")+1:]
				} else {
					var err error

					token, err = svc.IssueDeleteToken(ctx, args[0])
					if err != nil {
						return err
					}
				}

				res, err := svc.DeleteItem(ctx, token)
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res)
			})
		},
	}

	cmd.Flags().BoolVar(&byToken, "token", false, "argument is a delete token or delete URL")

	return cmd
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <destination-folder>",
		Short: "Copy an item into a folder (asynchronous on the server)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				res, err := svc.CopyItem(ctx, gateway.CopyItemInput{Source: args[0], Destination: args[1]})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res, "Monitor: "+res.MonitorURL)
			})
		},
	}
}

func newMvCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "mv <source> <destination-folder>",
		Short: "Move an item into a folder, optionally renaming it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				res, err := svc.MoveItem(ctx, gateway.MoveItemInput{
					Source:      args[0],
					Destination: args[1],
					NewName:     name,
				})
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name at the destination")

	return cmd
}

func newShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <path>",
		Short: "Create an anonymous view link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				res, err := svc.CreateShareLink(ctx, args[0])
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res, res.URL)
			})
		},
	}
}

func newUnshareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <path>",
		Short: "Revoke every share link on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				res, err := svc.DeleteShareLink(ctx, args[0])
				if err != nil {
					return err
				}

				return cc.printResult(res.Message, res)
			})
		},
	}
}

// tokenOutput is the JSON schema for `token --json`.
type tokenOutput struct {
	Token string `json:"token"`
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint capability tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path <folder>",
		Short: "Print the navigation token for a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(_ context.Context, cc *CLIContext, svc *gateway.Service) error {
				token, err := svc.IssuePathToken(args[0])
				if err != nil {
					return err
				}

				return cc.printResult(token, tokenOutput{Token: token})
			})
		},
	}, &cobra.Command{
		Use:   "delete <path>",
		Short: "Print a delete token and URL for the current version of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cc *CLIContext, svc *gateway.Service) error {
				token, err := svc.IssueDeleteToken(ctx, args[0])
				if err != nil {
					return err
				}

				return cc.printResult(token, tokenOutput{Token: token},
					"URL: "+strings.TrimRight(publicURL(cc.Cfg), "/")+"/delete/"+token)
			})
		},
	})

	return cmd
}
