package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/storage/postgres"
)

type menuJSON struct {
	Categories []categoryJSON `json:"categories"`
}

type categoryJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SortOrder int        `json:"sort_order"`
	Items     []itemJSON `json:"items"`
}

type itemJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Available   *bool           `json:"available"`
	Popular     bool            `json:"popular"`
	SortOrder   int             `json:"sort_order"`
}

func main() {
	var (
		databaseURL string
		menuFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, postgres.NewMenuRepository(pool), menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	return nil
}

func seedMenu(ctx context.Context, repo menu.Repository, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var m menuJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting categories", slog.Int("count", len(m.Categories)))

	for _, c := range m.Categories {
		if err := repo.UpsertCategory(ctx, &menu.Category{
			ID:        c.ID,
			Name:      c.Name,
			SortOrder: c.SortOrder,
			Active:    true,
		}); err != nil {
			return errors.Wrapf(err, "upsert category %s", c.ID)
		}

		slog.Info("upserted category", slog.String("id", c.ID), slog.String("name", c.Name))

		for _, it := range c.Items {
			price, err := priceToKopecks(it.Price)
			if err != nil {
				return errors.Wrapf(err, "item %s price", it.ID)
			}

			available := true
			if it.Available != nil {
				available = *it.Available
			}

			if err := repo.UpsertItem(ctx, &menu.Item{
				ID:          it.ID,
				CategoryID:  c.ID,
				Name:        it.Name,
				Description: it.Description,
				Price:       price,
				Available:   available,
				Popular:     it.Popular,
				SortOrder:   it.SortOrder,
			}); err != nil {
				return errors.Wrapf(err, "upsert item %s", it.ID)
			}

			slog.Info("upserted item", slog.String("id", it.ID), slog.String("name", it.Name), slog.String("price", it.Price.String()))
		}
	}

	return nil
}

func priceToKopecks(d decimal.Decimal) (money.Money, error) {
	kopecks := d.Mul(decimal.NewFromInt(100))
	if !kopecks.IsInteger() {
		return money.Money{}, errors.Errorf("price %s has sub-kopeck precision", d)
	}
	return money.New(kopecks.IntPart(), money.RUB)
}
