// Package catalog reads table descriptors from SQLite, caches them process
// wide and detects schema changes made to a table while it is being rebuilt.
package catalog
