package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/nainya/bsdb/internal/config"
	"github.com/nainya/bsdb/pkg/bsdb"
	"github.com/nainya/bsdb/pkg/pagecache"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "bsdb",
		Usage:   "embedded key/value database file inspector and driver",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			insertCommand,
			getCommand,
			updateCommand,
			eraseCommand,
			listCommand,
			statsCommand,
			{
				Name:  "version",
				Usage: "print the bsdb version",
				Action: func(c *cli.Context) error {
					fmt.Println("bsdb", version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func openDB(c *cli.Context, readOnly bool) (*bsdb.DB, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ReadOnly = readOnly
	return bsdb.Open(c.Args().First(), cfg)
}

var insertCommand = &cli.Command{
	Name:      "insert",
	Usage:     "insert a key/value pair, or auto-assign a key with --auto",
	ArgsUsage: "<path> [key] <value>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "auto", Usage: "auto-assign the next key instead of taking one"},
	},
	Action: func(c *cli.Context) error {
		db, err := openDB(c, false)
		if err != nil {
			return err
		}
		defer db.Close()

		if c.Bool("auto") {
			value := c.Args().Get(1)
			key, err := db.InsertAuto(value)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		}

		key, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("parse key: %w", err)
		}
		if err := db.Insert(key, c.Args().Get(2)); err != nil {
			return err
		}
		return db.Close()
	},
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "print the value stored under a key",
	ArgsUsage: "<path> <key>",
	Action: func(c *cli.Context) error {
		db, err := openDB(c, true)
		if err != nil {
			return err
		}
		defer db.Close()

		key, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("parse key: %w", err)
		}
		value, found, err := db.Get(key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %d not found", key)
		}
		fmt.Println(value)
		return nil
	},
}

var updateCommand = &cli.Command{
	Name:      "update",
	Usage:     "overwrite the value stored under an existing key",
	ArgsUsage: "<path> <key> <value>",
	Action: func(c *cli.Context) error {
		db, err := openDB(c, false)
		if err != nil {
			return err
		}
		defer db.Close()

		key, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("parse key: %w", err)
		}
		if err := db.Update(key, c.Args().Get(2)); err != nil {
			return err
		}
		return db.Close()
	},
}

var eraseCommand = &cli.Command{
	Name:      "erase",
	Usage:     "remove a key and its value",
	ArgsUsage: "<path> <key>",
	Action: func(c *cli.Context) error {
		db, err := openDB(c, false)
		if err != nil {
			return err
		}
		defer db.Close()

		key, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("parse key: %w", err)
		}
		if err := db.Erase(key); err != nil {
			return err
		}
		return db.Close()
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "print every key/value pair in ascending key order",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		db, err := openDB(c, true)
		if err != nil {
			return err
		}
		defer db.Close()

		key, value, found, err := db.First()
		if err != nil {
			return err
		}
		for found {
			fmt.Printf("%d\t%s\n", key, value)
			key, value, found, err = db.Next()
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var statsCommand = &cli.Command{
	Name:      "stats",
	Usage:     "print page cache statistics",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		db, err := openDB(c, true)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("entries:", db.Size())
		fmt.Println("page_requests:", db.Stats(pagecache.StatRequests))
		fmt.Println("page_misses:", db.Stats(pagecache.StatMisses))
		fmt.Println("bytes_read:", db.Stats(pagecache.StatBytesRead))
		fmt.Println("bytes_written:", db.Stats(pagecache.StatBytesWritten))
		fmt.Printf("hit_rate: %.4f\n", db.HitRate())
		return nil
	},
}
