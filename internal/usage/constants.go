package usage

// BatchFlushThreshold is the number of buffered entries that triggers a
// write without waiting for the flush timer.
const BatchFlushThreshold = 100

// tableName is the SQL table and MongoDB collection holding the ledger.
const tableName = "usage"
