package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Out-of-band deletion against the tweetwall store. Takes a tweet id or a
// status URL and removes the row; connected viewers of a running wall
// converge when the record falls outside their queries.
func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <tweet id or status url>\n", os.Args[0])
		os.Exit(1)
	}

	// Accept https://twitter.com/<user>/status/<id> as pasted from a browser.
	parts := strings.Split(os.Args[1], "/")
	tweetID := parts[len(parts)-1]

	dbName := os.Getenv("database_name")
	if dbName == "" {
		dbName = "tweetwall.db"
	}

	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	panicErr(err)

	result := db.Exec("DELETE FROM tweets WHERE tweet_id = ?", tweetID)
	panicErr(result.Error)

	if result.RowsAffected == 0 {
		fmt.Printf("Tweet %s was not found in %s\n", tweetID, dbName)
		return
	}
	fmt.Printf("Deleted tweet %s from %s\n", tweetID, dbName)
}

func panicErr(err error) {
	if err != nil {
		panic(err)
	}
}
