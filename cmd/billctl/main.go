// Command billctl manages bills on a running bill server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"billdesk/backend/internal/client"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/session"
	"billdesk/backend/internal/store"
)

func main() {
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("billctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	itemFlag := &cli.StringSliceFlag{
		Name:  "item",
		Usage: "item as description[;unit[;kg]];price, repeatable",
	}
	return &cli.App{
		Name:  "billctl",
		Usage: "list, create, edit, delete and export bills",
		// Item descriptions may contain commas.
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://127.0.0.1:8080",
				Usage:   "bill server base URL",
				EnvVars: []string{"BILLDESK_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "per-request timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list bills, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "filter by invoice number or customer"},
				},
				Action: listBills,
			},
			{
				Name:  "create",
				Usage: "create a bill with the next invoice number",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "customer", Required: true},
					&cli.StringSliceFlag{Name: itemFlag.Name, Usage: itemFlag.Usage, Required: true},
				},
				Action: createBill,
			},
			{
				Name:      "edit",
				Usage:     "change a stored bill",
				ArgsUsage: "STOREID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "customer"},
					&cli.StringFlag{Name: "invoice-number"},
					itemFlag,
				},
				Action: editBill,
			},
			{
				Name:      "delete",
				Usage:     "delete a bill",
				ArgsUsage: "STOREID",
				Action:    deleteBill,
			},
			{
				Name:      "export",
				Usage:     "download the PDF of a bill",
				ArgsUsage: "STOREID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path, default Invoice-{number}.pdf"},
				},
				Action: exportBill,
			},
			{
				Name:      "message",
				Usage:     "print the share message of a bill",
				ArgsUsage: "STOREID",
				Action:    printMessage,
			},
		},
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"), nil)
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

func storeIDArg(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", cli.Exit("missing STOREID argument", 2)
	}
	return id, nil
}

func listBills(c *cli.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	ctrl := session.New(apiClient(c))
	if err := ctrl.Search(ctx, c.String("search")); err != nil {
		return err
	}
	printBills(c, ctrl.Bills())
	return nil
}

func printBills(c *cli.Context, bills []domain.Bill) {
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STORE ID\tINVOICE\tDATE\tCUSTOMER\tITEMS\tTOTAL")
	for _, b := range bills {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			b.StoreID, b.InvoiceNumber, b.Date.Format("2006-01-02"), b.CustomerName, len(b.Items), b.Total.Format())
	}
	_ = tw.Flush()
}

func createBill(c *cli.Context) error {
	edits, err := parseItems(c.StringSlice("item"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	ctrl := session.New(apiClient(c))
	if err := ctrl.StartNew(ctx); err != nil {
		return err
	}
	if err := ctrl.SetCustomer(c.String("customer")); err != nil {
		return err
	}
	if err := replaceItems(ctrl, edits); err != nil {
		return err
	}
	saved, err := ctrl.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "created bill %s (invoice %s, total %s)\n", saved.StoreID, saved.InvoiceNumber, saved.Total.Format())
	return nil
}

func editBill(c *cli.Context) error {
	storeID, err := storeIDArg(c)
	if err != nil {
		return err
	}
	edits, err := parseItems(c.StringSlice("item"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	api := apiClient(c)
	bill, err := api.GetBill(ctx, storeID)
	if err != nil {
		return err
	}

	ctrl := session.New(api)
	if err := ctrl.StartEdit(bill); err != nil {
		return err
	}
	if c.IsSet("customer") {
		if err := ctrl.SetCustomer(c.String("customer")); err != nil {
			return err
		}
	}
	if c.IsSet("invoice-number") {
		if err := ctrl.SetInvoiceNumber(c.String("invoice-number")); err != nil {
			return err
		}
	}
	if len(edits) > 0 {
		if err := replaceItems(ctrl, edits); err != nil {
			return err
		}
	}
	saved, err := ctrl.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "updated bill %s (invoice %s, total %s)\n", saved.StoreID, saved.InvoiceNumber, saved.Total.Format())
	return nil
}

func deleteBill(c *cli.Context) error {
	storeID, err := storeIDArg(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := session.New(apiClient(c)).Delete(ctx, storeID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted bill %s\n", storeID)
	return nil
}

func exportBill(c *cli.Context) error {
	storeID, err := storeIDArg(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	data, name, err := apiClient(c).DownloadPDF(ctx, storeID)
	if err != nil {
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusUnprocessableEntity {
			return cli.Exit(statusErr.Message, 1)
		}
		return err
	}
	out := c.String("out")
	if out == "" {
		out = filepath.Base(name)
	}
	if out == "" || out == "." {
		out = storeID + ".pdf"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func printMessage(c *cli.Context) error {
	storeID, err := storeIDArg(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := apiClient(c).ShareMessage(ctx, storeID)
	if errors.Is(err, store.ErrNotFound) {
		return cli.Exit("bill not found", 1)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, msg)
	return nil
}
