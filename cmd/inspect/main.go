// Command inspect dumps the coordinator's message log from a Badger
// directory, offline. Handy when debugging receipt or ordering issues
// without attaching a client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"telecare/domain"
)

func main() {
	dbPath := flag.String("db", "./badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	// BypassLockGuard allows opening while the coordinator holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "Conversation", "Sender", "Kind", "Sent", "Delivered", "Read", "Payload"})
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

	total, deleted := 0, 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var m domain.Message
				if err := json.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				total++

				payload := m.Payload
				if len(payload) > 40 {
					payload = payload[:40] + "…"
				}
				if m.Deleted {
					deleted++
					payload = color.Red.Sprint("<deleted>")
				}

				table.Append([]string{
					fmt.Sprintf("%d", m.SentSeq),
					string(m.Conversation),
					m.Sender.Key(),
					string(m.Kind),
					m.CreatedAt.Format("15:04:05"),
					fmt.Sprintf("%d", len(m.DeliveredTo)),
					fmt.Sprintf("%d", len(m.ReadBy)),
					payload,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	color.Green.Printf("%d messages", total)
	if deleted > 0 {
		color.Yellow.Printf(" (%d deleted)", deleted)
	}
	fmt.Println()
}
