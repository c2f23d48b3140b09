package main

import (
	"fmt"

	"github.com/cogitoproject/cogito/pkg/conversations"
)

// ListCmd prints saved conversations.
type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	store, err := openStore(cli)
	if err != nil {
		return err
	}

	all, err := store.List()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}

	for _, conv := range all {
		fmt.Printf("%4d  %-40s  %d messages\n", conv.ID, conv.Name, len(conv.Conversation))
	}
	return nil
}

// DeleteCmd removes one saved conversation.
type DeleteCmd struct {
	ID int `arg:"" help:"Conversation id to delete."`
}

func (c *DeleteCmd) Run(cli *CLI) error {
	store, err := openStore(cli)
	if err != nil {
		return err
	}

	if err := store.Delete(c.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %d.\n", c.ID)
	return nil
}

func openStore(cli *CLI) (*conversations.Store, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, &usageError{err}
	}
	return conversations.NewStoreFromConfig(&cfg.Conversations)
}
