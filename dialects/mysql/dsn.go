package mysql

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DSN holds the parts of a mysql data source name
type DSN struct {
	Host    string
	Port    int
	User    string
	Pass    string
	DB      string
	Options map[string]string
}

func (d DSN) String() string {
	dsn := d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + strconv.Itoa(d.Port) + ")/" + d.DB

	if len(d.Options) > 0 {
		keys := make([]string, 0, len(d.Options))
		for k := range d.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		params := make([]string, 0, len(keys))
		for _, k := range keys {
			params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(d.Options[k]))
		}
		dsn += "?" + strings.Join(params, "&")
	}

	return dsn
}
