package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/cadence-academy/backend/core"
)

// fakeConnector connects to a server that accepts connections but runs no statement.
type fakeConnector struct {
	name   string
	closed *[]string
}

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) { return fakeConn{}, nil }
func (c fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

func (c fakeConnector) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("statements unsupported") }
func (fakeConn) Close() error                        { return nil }
func (fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("transactions unsupported") }

func TestCreateIfNotExist_closesConnections(t *testing.T) {
	var closed []string
	openDB = func(_ string, admin bool, _ *core.Config) (*sql.DB, error) {
		name := "app"
		if admin {
			name = "admin"
		}
		return sql.OpenDB(fakeConnector{name: name, closed: &closed}), nil
	}
	t.Cleanup(func() { openDB = open })

	tests := []struct {
		name       string
		appUser    string
		wantErr    string
		wantClosed []string
	}{
		{name: "app user creation fails", appUser: "cadence", wantErr: "creating app user", wantClosed: []string{"admin"}},
		{name: "database creation fails", wantErr: "creating database", wantClosed: []string{"app", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed = nil
			conf := &core.Config{}
			conf.Database.User = tt.appUser

			err := CreateIfNotExist(conf)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}
