package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
	"github.com/taktline/takt/pkg/client"
)

// command binds the client subcommands to the daemon connection flags.
type command struct {
	api *APIFlags
}

func (c command) newClient(needToken bool) (*client.Client, error) {
	cfg := client.Config{BaseURL: c.api.URL, Timeout: c.api.Timeout}
	if needToken {
		session, err := NewSessionManager().LoadSession()
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, fmt.Errorf("not logged in: run 'takt login' first")
		}
		cfg.Token = session.Token
		if session.ServerURL != "" && c.api.URL == "http://localhost:8080" {
			cfg.BaseURL = session.ServerURL
		}
	}
	return client.New(cfg), nil
}

func (c command) Login(username, password string) error {
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimSpace(line)
	}
	cl, err := c.newClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	if err := cl.Login(ctx, username, password); err != nil {
		return err
	}
	session := &Session{
		Token:     cl.Token(),
		Username:  username,
		ServerURL: c.api.URL,
		ExpiresAt: time.Now().Add(12 * time.Hour),
	}
	if err := NewSessionManager().SaveSession(session); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", username)
	return nil
}

func (c command) Register(f RegisterFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	spec := process.Spec{
		ID:                     f.ID,
		Name:                   f.Name,
		Kind:                   process.Kind(f.Kind),
		TargetUnits:            f.TargetUnits,
		RatePerWorkerPerMinute: f.Rate,
	}
	snap, err := cl.Register(ctx, spec)
	if err != nil {
		return err
	}
	printJSON(snap)
	return nil
}

func (c command) Status(f ProcessFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	if f.ID == "" {
		all, err := cl.Processes(ctx)
		if err != nil {
			return err
		}
		printJSON(all)
		return nil
	}
	st, err := cl.Process(ctx, f.ID)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Estimate(f ProcessFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	st, err := cl.Process(ctx, f.ID)
	if err != nil {
		return err
	}
	printJSON(st.Estimate)
	return nil
}

func (c command) Start(f ProcessFlags) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Start(ctx, f.ID)
	})
}

func (c command) Pause(f ProcessFlags) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Pause(ctx, f.ID, f.Justification)
	})
}

func (c command) Resume(f ProcessFlags) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Resume(ctx, f.ID)
	})
}

func (c command) Finish(f ProcessFlags) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Finish(ctx, f.ID)
	})
}

func (c command) Adjust(f ProcessFlags) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Adjust(ctx, f.ID, f.Delta)
	})
}

func (c command) Timer(f ProcessFlags, op string) error {
	return c.simpleOp(func(ctx context.Context, cl *client.Client) error {
		return cl.Timer(ctx, f.ID, op)
	})
}

func (c command) CheckIn(f PresenceFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	rec, err := cl.CheckIn(ctx, f.WorkerID, f.ProcessID, store.Role(f.Role))
	if err != nil {
		return err
	}
	printJSON(rec)
	return nil
}

func (c command) CheckOut(f PresenceFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	rec, err := cl.CheckOut(ctx, f.WorkerID, f.Justification)
	if err != nil {
		return err
	}
	printJSON(rec)
	return nil
}

func (c command) BulkExit(f BulkExitFlags) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	res, err := cl.BulkExit(ctx, f.ProcessID, f.Credential, f.Justification)
	if err != nil {
		return err
	}
	printJSON(res)
	return nil
}

func (c command) Justifications(category string) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	texts, err := cl.Justifications(ctx, category)
	if err != nil {
		return err
	}
	printJSON(texts)
	return nil
}

func (c command) simpleOp(fn func(context.Context, *client.Client) error) error {
	cl, err := c.newClient(true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.api.Timeout)
	defer cancel()
	if err := fn(ctx, cl); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
