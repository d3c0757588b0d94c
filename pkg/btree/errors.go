package btree

import "errors"

var errShortNode = errors.New("btree: short node payload")
