// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/hui-shao/byre/internal/buildinfo"
	"github.com/hui-shao/byre/internal/config"
	"github.com/hui-shao/byre/internal/database"
	"github.com/hui-shao/byre/internal/domain"
	"github.com/hui-shao/byre/internal/models"
	"github.com/hui-shao/byre/internal/nexus"
	"github.com/hui-shao/byre/internal/qbittorrent"
	"github.com/hui-shao/byre/internal/reconcile"
	"github.com/hui-shao/byre/internal/scoring"
)

type Application struct {
	cfg *config.AppConfig
}

func NewApplication(configDir string) (*Application, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg.ApplyLogConfig()
	return &Application{cfg: cfg}, nil
}

// siteAPI logs in to one configured site and returns its API handle.
func (app *Application) siteAPI(ctx context.Context, siteKey string) (*nexus.API, error) {
	siteCfg, err := app.siteConfig(siteKey)
	if err != nil {
		return nil, err
	}

	site, err := nexus.LookupSite(siteCfg.Key)
	if err != nil {
		return nil, fmt.Errorf("%w, known sites: %s", err, strings.Join(nexus.SiteKeys(), ", "))
	}

	session, err := nexus.NewSession(site, siteCfg.Username, siteCfg.Password,
		app.cfg.ResolveCookiePath(*siteCfg),
		nexus.WithCaptchaSolver(&promptSolver{dataDir: app.cfg.GetDataDir()}))
	if err != nil {
		return nil, err
	}
	if err := session.Login(ctx); err != nil {
		return nil, fmt.Errorf("failed to login to %s: %w", site.Key, err)
	}
	return nexus.NewAPI(session), nil
}

func (app *Application) siteConfig(siteKey string) (*domain.SiteConfig, error) {
	sites := app.cfg.Config.Sites
	if len(sites) == 0 {
		return nil, fmt.Errorf("no sites configured, run generate-config and fill in credentials")
	}
	if siteKey == "" {
		return &sites[0], nil
	}
	for i := range sites {
		if sites[i].Key == siteKey {
			return &sites[i], nil
		}
	}
	return nil, fmt.Errorf("site %q is not configured", siteKey)
}

func (app *Application) RunList(ctx context.Context, siteKey string, page int) error {
	api, err := app.siteAPI(ctx, siteKey)
	if err != nil {
		return err
	}

	records, _, err := api.ListTorrents(ctx, page)
	if err != nil {
		return err
	}

	scorer, err := scoring.NewScorer(app.cfg.Config.Scoring)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tSIZE\tAGE\tSEED\tLEECH\tPROMO\tSCORE")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1fd\t%d\t%d\t%s\t%.2f\n",
			r.SiteID, truncate(r.Title, 60), r.Category,
			nexus.FormatSize(r.SizeBytes), clampAge(r.AgeDays),
			r.Seeders, r.Leechers, r.Promotions.String(), scorer.Score(r))
	}
	return w.Flush()
}

func (app *Application) RunUser(ctx context.Context, siteKey string, userID int) error {
	api, err := app.siteAPI(ctx, siteKey)
	if err != nil {
		return err
	}

	user, err := api.UserInfo(ctx, int64(userID))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "User\t%s (%d) @ %s\n", user.Username, user.UserID, user.Site)
	fmt.Fprintf(w, "Level\t%s\n", user.Level)
	fmt.Fprintf(w, "Bonus\t%.1f\n", user.BonusPoints)
	fmt.Fprintf(w, "Ratio\t%.3f\n", user.Ratio)
	fmt.Fprintf(w, "Uploaded\t%s\n", nexus.FormatSize(user.UploadedBytes))
	fmt.Fprintf(w, "Downloaded\t%s\n", nexus.FormatSize(user.DownloadedBytes))
	if user.Invitations != nil {
		fmt.Fprintf(w, "Invitations\t%d\n", *user.Invitations)
	}
	if user.Ranking != nil {
		fmt.Fprintf(w, "Ranking\t%d\n", *user.Ranking)
	}
	fmt.Fprintf(w, "Seeding\t%d\n", user.SeedingCount)
	fmt.Fprintf(w, "Leeching\t%d\n", user.LeechingCount)
	fmt.Fprintf(w, "Connectable\t%v\n", user.Connectable)
	return w.Flush()
}

// RunPlan fetches the catalog, snapshots the client, computes the plan,
// records it, and optionally applies it.
func (app *Application) RunPlan(ctx context.Context, siteKey string, pages int, apply bool) error {
	api, err := app.siteAPI(ctx, siteKey)
	if err != nil {
		return err
	}
	site := api.Site().Key

	var catalog []nexus.TorrentRecord
	for page := 0; page < pages; page++ {
		records, _, err := api.ListTorrents(ctx, page)
		if err != nil {
			return err
		}
		catalog = append(catalog, records...)
	}
	log.Info().Str("site", site).Int("records", len(catalog)).Msg("Catalog fetched")

	qbtCfg := app.cfg.Config.QBittorrent
	client, err := qbittorrent.NewClient(ctx, qbtCfg)
	if err != nil {
		return err
	}
	if err := client.EnsureCategories(ctx, qbtCfg.DownloadDir); err != nil {
		return err
	}
	locals, err := client.ListLocal(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("locals", len(locals)).Msg("Client snapshot taken")

	scorer, err := scoring.NewScorer(app.cfg.Config.Scoring)
	if err != nil {
		return err
	}

	admit := scorer.Admit
	if qbtCfg.SizeLimitGB > 0 {
		var used int64
		for _, local := range locals {
			for _, size := range local.Files {
				used += size
			}
		}
		budget := scoring.NewBudget(int64(qbtCfg.SizeLimitGB*float64(1<<30)), used)
		log.Debug().
			Str("remaining", nexus.FormatSize(budget.Remaining())).
			Str("used", nexus.FormatSize(used)).
			Msg("Size budget active")
		admit = func(rec *nexus.TorrentRecord) bool {
			return scorer.Admit(rec) && budget.Admit(rec)
		}
	}

	plan, err := reconcile.Plan(catalog, locals, reconcile.Policy{
		DownloadDir: qbtCfg.DownloadDir,
		Paused:      qbtCfg.Paused,
		Admit:       admit,
		Retain:      scorer.Retain,
	})
	if err != nil {
		return err
	}

	db, err := database.New(app.cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	history := models.NewPlanHistoryStore(db.Conn())
	runID, err := history.Record(ctx, site, plan)
	if err != nil {
		return err
	}

	printPlan(plan)

	if !apply {
		return nil
	}

	fetch := func(ctx context.Context, fetchSite string, remoteID int64) ([]byte, error) {
		if fetchSite != site {
			return nil, fmt.Errorf("no session for site %s", fetchSite)
		}
		return api.DownloadTorrent(ctx, remoteID)
	}
	if _, err := client.Apply(ctx, plan, fetch); err != nil {
		return err
	}
	return history.MarkApplied(ctx, runID)
}

func (app *Application) RunHistory(ctx context.Context, siteKey string, limit int) error {
	db, err := database.New(app.cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := models.NewPlanHistoryStore(db.Conn()).List(ctx, siteKey, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tTIME\tAPPLIED\tADD\tRENAME\tREMOVE\tKEEP")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%d\t%d\t%d\t%d\n",
			run.ID, run.Site, run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.Applied, run.Added, run.Renamed, run.Removed, run.Kept)
	}
	return w.Flush()
}

func printPlan(plan []reconcile.Action) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, action := range plan {
		switch action.Kind {
		case reconcile.ActionAdd:
			reuse := ""
			if action.ReusePath != "" {
				reuse = " (reuse " + action.ReusePath + ")"
			}
			fmt.Fprintf(w, "add\t%s\t%s%s\n", action.Record.Key(), action.Record.Title, reuse)
		case reconcile.ActionRename:
			fmt.Fprintf(w, "rename\t%s\t-> %s\n", action.Local.Name, action.NewName)
		case reconcile.ActionRemove:
			fmt.Fprintf(w, "remove\t%s\tdeleteFiles=%v\n", action.Local.Name, action.DeleteFiles)
		}
	}
	w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// Display-side clamp for clock skew; extraction keeps the raw value.
func clampAge(days float64) float64 {
	if days < 0 {
		return 0
	}
	return days
}

// promptSolver writes the CAPTCHA image to disk and asks the operator
// to read it. OCR solvers plug in through the same interface.
type promptSolver struct {
	dataDir string
}

func (p *promptSolver) Solve(ctx context.Context, image []byte) (string, error) {
	path := filepath.Join(p.dataDir, "captcha.png")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", err
	}
	fmt.Printf("Captcha saved to %s\nEnter captcha text: ", path)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
