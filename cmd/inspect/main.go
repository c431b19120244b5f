// Command inspect dumps the users and messages of a relay database.
// The database is opened read-only, so it can run next to a live server.
package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	prefix := flag.String("prefix", "", "Only dump keys with this prefix (user: or msg:)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database path, use -db or BADGER_FILEPATH")
	}

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *prefix == "" || strings.HasPrefix(*prefix, "user:") {
		if err := dumpUsers(db, *prefix); err != nil {
			log.Fatal(err)
		}
	}
	if *prefix == "" || strings.HasPrefix(*prefix, "msg:") {
		if err := dumpMessages(db, *prefix); err != nil {
			log.Fatal(err)
		}
	}
}

func dumpUsers(db *badger.DB, prefix string) error {
	users, err := repositories.NewUserRepository(db).ListUsers()
	if err != nil {
		return err
	}
	users = lo.Filter(users, func(user domain.User, _ int) bool {
		return strings.HasPrefix("user:"+user.Username, prefix)
	})

	table := newTable([]string{"Username", "Friends", "Pending", "Created"})
	for _, user := range users {
		table.Append([]string{
			user.Username,
			strings.Join(user.Friends.Sorted(), ","),
			strings.Join(user.PendingRequests.Sorted(), ","),
			user.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	printHeader(fmt.Sprintf("Users (%d)", len(users)))
	table.Render()
	return nil
}

func dumpMessages(db *badger.DB, prefix string) error {
	if prefix == "" {
		prefix = "msg:"
	}
	count := 0
	table := newTable([]string{"ID", "From", "To", "Time", "Seen", "Body"})
	err := scan(db, prefix, func(_ string, val []byte) {
		message, err := repositories.DecodeMessage(val)
		if err != nil {
			fmt.Printf("Error decoding message: %v\n", err)
			return
		}
		// Ids are time ordered, their tail is what tells them apart
		displayID := message.ID
		if len(displayID) > 8 {
			displayID = displayID[len(displayID)-8:]
		}
		count++
		table.Append([]string{
			displayID,
			message.From,
			message.To,
			message.Timestamp.Format("15:04:05"),
			strconv.FormatBool(message.Seen),
			message.Body,
		})
	})
	if err != nil {
		return err
	}
	printHeader(fmt.Sprintf("Messages (%d)", count))
	table.Render()
	return nil
}

func scan(db *badger.DB, prefix string, fn func(key string, val []byte)) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(val []byte) error {
				fn(key, val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printHeader(title string) {
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("  ====== " + title + " ======"))
}
