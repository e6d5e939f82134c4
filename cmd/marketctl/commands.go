package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"marketbaza/internal/admin"
	"marketbaza/internal/apiclient"
	"marketbaza/internal/apperr"
	"marketbaza/internal/daybook"
	"marketbaza/internal/domain"
	"marketbaza/internal/ordering"
	"marketbaza/internal/pricing"
	"marketbaza/internal/reconcile"
	"marketbaza/internal/session"
)

type app struct {
	client  *apiclient.Client
	session *session.Session
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer

	yes    bool
	market int64
	date   string
	xlsx   string
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "signed out")
		return nil
	}

	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	switch cmd {
	case "home":
		return a.home(ctx, user)
	case "draft":
		return a.draft(ctx, user, rest)
	case "order":
		return a.order(ctx, user, rest)
	case "ledger":
		return a.ledger(ctx, user, rest)
	case "baza":
		return a.baza(ctx, user, rest)
	case "report":
		if err := requireRole(user, domain.RoleAdmin); err != nil {
			return err
		}
		return a.report(ctx)
	case "product":
		if err := requireRole(user, domain.RoleAdmin); err != nil {
			return err
		}
		return a.product(ctx, rest)
	default:
		return apperr.NewValidation("marketctl", "unknown command "+strconv.Quote(cmd))
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return apperr.NewValidation("login", "usage: login <email> <password>")
	}
	resp, err := a.client.Login(ctx, args[0], args[1])
	if err != nil {
		return apperr.FromClient("login", err)
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", resp.User.Email, resp.User.Role)
	return nil
}

func (a *app) currentUser(ctx context.Context) (domain.User, error) {
	user, ok, err := a.session.User(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, apperr.NewValidation("session", "not signed in, run: marketctl login <email> <password>")
	}
	return user, nil
}

// home routes to the screen each role starts on.
func (a *app) home(ctx context.Context, user domain.User) error {
	switch user.Role {
	case domain.RoleMarket:
		return a.draft(ctx, user, []string{"show"})
	case domain.RoleBaza:
		return a.baza(ctx, user, []string{"show"})
	case domain.RoleAdmin:
		return a.report(ctx)
	default:
		return apperr.NewValidation("home", "unsupported role "+user.Role)
	}
}

func requireRole(user domain.User, roles ...string) error {
	for _, r := range roles {
		if user.Role == r {
			return nil
		}
	}
	return apperr.NewValidation("marketctl", "command not available for role "+user.Role)
}

func (a *app) marketFor(user domain.User) (int64, error) {
	if err := requireRole(user, domain.RoleMarket, domain.RoleAdmin); err != nil {
		return 0, err
	}
	if user.Role == domain.RoleMarket {
		return user.MarketRef(), nil
	}
	if a.market <= 0 {
		return 0, apperr.NewValidation("marketctl", "--market is required for admin")
	}
	return a.market, nil
}

func (a *app) orderingController(ctx context.Context, user domain.User) (*ordering.Controller, error) {
	marketID, err := a.marketFor(user)
	if err != nil {
		return nil, err
	}
	ctrl := ordering.New(a.client, a.session, marketID, a.logger)
	if err := ctrl.LoadWorkingSet(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func (a *app) draft(ctx context.Context, user domain.User, args []string) error {
	if len(args) == 0 {
		return apperr.NewValidation("draft", "usage: draft show|save|reset")
	}
	ctrl, err := a.orderingController(ctx, user)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	switch args[0] {
	case "show":
	case "save":
		if err := applyRows(ctrl, args[1:]); err != nil {
			return err
		}
		if err := ctrl.SaveDraft(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "draft saved")
	case "reset":
		if !a.confirm("Clear every quantity and delete the saved draft?") {
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		if err := ctrl.ResetWorkingSet(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "working set cleared")
	default:
		return apperr.NewValidation("draft", "unknown draft command "+strconv.Quote(args[0]))
	}
	return a.printRows(ctrl)
}

func (a *app) order(ctx context.Context, user domain.User, args []string) error {
	if len(args) == 0 || args[0] != "submit" {
		return apperr.NewValidation("order", "usage: order submit [id=qty...]")
	}
	ctrl, err := a.orderingController(ctx, user)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := applyRows(ctrl, args[1:]); err != nil {
		return err
	}
	if !a.confirm(fmt.Sprintf("Send order for market %d?", ctrl.MarketID())) {
		fmt.Fprintln(a.out, "cancelled")
		return nil
	}
	detail, err := ctrl.SubmitOrder(ctx)
	if detail.ID != 0 {
		fmt.Fprintf(a.out, "order #%d sent with %d items\n", detail.ID, len(detail.Items))
	}
	return err
}

func applyRows(ctrl *ordering.Controller, args []string) error {
	assignments, err := parseAssignments(args)
	if err != nil {
		return err
	}
	for _, as := range assignments {
		setters := []func(int64, string) error{ctrl.SetQuantity, ctrl.SetReceivedQuantity, ctrl.SetPrice}
		if len(as.values) > len(setters) {
			return apperr.NewValidation("parse", "at most qty:received:price per product")
		}
		for i, v := range as.values {
			if err := setters[i](as.productID, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) printRows(ctrl *ordering.Controller) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tQTY\tRECEIVED\tPRICE\tTOTAL")
	for _, r := range ctrl.Rows() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ProductID, r.Name, r.Quantity, r.ReceivedQuantity, r.Price, reconcile.Display(r.Total()))
	}
	fmt.Fprintf(tw, "\t\t\t\t\t%s\n", reconcile.Display(ctrl.GrandTotal()))
	return tw.Flush()
}

func (a *app) ledger(ctx context.Context, user domain.User, args []string) error {
	if len(args) == 0 {
		return apperr.NewValidation("ledger", "usage: ledger show|submit")
	}
	marketID, err := a.marketFor(user)
	if err != nil {
		return err
	}
	ledger := daybook.New(a.client, marketID, a.logger)
	defer ledger.Close()
	if err := ledger.Load(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "show":
	case "submit":
		for _, arg := range args[1:] {
			field, value, ok := strings.Cut(arg, "=")
			if !ok {
				return apperr.NewValidation("ledger", "expected field=value, got "+strconv.Quote(arg))
			}
			if err := ledger.Set(daybook.Field(field), value); err != nil {
				return err
			}
		}
		created, err := ledger.Submit(ctx, a.date)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "ledger #%d filed for %s\n", created.ID, created.Date)
	default:
		return apperr.NewValidation("ledger", "unknown ledger command "+strconv.Quote(args[0]))
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", daybook.TotalReceived, ledger.Value(daybook.TotalReceived))
	for _, f := range daybook.Deductions {
		fmt.Fprintf(tw, "%s\t%s\n", f, ledger.Value(f))
	}
	fmt.Fprintf(tw, "remainder\t%s\n", reconcile.Display(ledger.Remainder()))
	return tw.Flush()
}

func (a *app) baza(ctx context.Context, user domain.User, args []string) error {
	if err := requireRole(user, domain.RoleBaza, domain.RoleAdmin); err != nil {
		return err
	}
	if len(args) == 0 {
		return apperr.NewValidation("baza", "usage: baza show|price|approve|clear")
	}
	ctrl := pricing.New(a.client, a.logger)
	defer ctrl.Close()
	if err := ctrl.LoadAggregates(ctx); err != nil {
		return err
	}
	if a.market > 0 {
		if err := ctrl.SelectMarket(a.market); err != nil {
			return err
		}
	}

	switch args[0] {
	case "show":
	case "price":
		assignments, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		for _, as := range assignments {
			if len(as.values) != 1 {
				return apperr.NewValidation("baza", "expected id=price")
			}
			if _, err := ctrl.SetPrice(as.productID, as.values[0]); err != nil {
				return err
			}
		}
		sent, err := ctrl.CommitPrices(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d prices saved\n", sent)
	case "approve":
		if len(args) != 2 {
			return apperr.NewValidation("baza", "usage: baza approve <order-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return apperr.NewValidation("baza", "order id must be a number")
		}
		if _, err := ctrl.ApproveOrder(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "order #%d approved\n", id)
	case "clear":
		if !a.confirm("Delete every order and every saved price?") {
			fmt.Fprintln(a.out, "cancelled")
			return nil
		}
		if err := ctrl.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "orders and prices cleared")
	default:
		return apperr.NewValidation("baza", "unknown baza command "+strconv.Quote(args[0]))
	}

	fmt.Fprintf(a.out, "market %d, %d pending orders\n", ctrl.SelectedMarket(), len(ctrl.PendingOrders()))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tMARKET\tTOTAL\tPRICE\tGRAND TOTAL")
	for _, r := range ctrl.View() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ProductID, r.Name, r.MarketQuantity, r.TotalQuantity, r.Price, reconcile.Display(r.GrandTotal))
	}
	fmt.Fprintf(tw, "\t\t\t\t\t%s\n", reconcile.Display(ctrl.GrandTotal()))
	return tw.Flush()
}

func (a *app) report(ctx context.Context) error {
	reports := admin.NewReports(a.client, a.logger)
	defer reports.Close()
	if err := reports.Load(ctx, a.date); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "report for %s\n", reports.Date())
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(admin.Columns, "\t")))
	for _, row := range reports.Rows() {
		fmt.Fprintln(tw, strings.Join(row.Cells(), "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if a.xlsx == "" {
		return nil
	}
	f, err := os.Create(a.xlsx)
	if err != nil {
		return err
	}
	if err := reports.ExportXLSX(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "written to %s\n", a.xlsx)
	return nil
}

func (a *app) product(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "add" {
		return apperr.NewValidation("product", "usage: product add <name>")
	}
	created, err := admin.NewCatalog(a.client).AddProduct(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "product #%d %s added\n", created.ID, created.Name)
	return nil
}

func (a *app) confirm(prompt string) bool {
	if a.yes {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(a.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

type assignment struct {
	productID int64
	values    []string
}

// parseAssignments reads "id=v1[:v2...]" arguments.
func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, apperr.NewValidation("parse", "expected id=value, got "+strconv.Quote(arg))
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperr.NewValidation("parse", "product id must be a positive number, got "+strconv.Quote(key))
		}
		out = append(out, assignment{productID: id, values: strings.Split(value, ":")})
	}
	return out, nil
}
