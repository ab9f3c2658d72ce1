package consts

type contextKey string

// UseMasterDBKey signals that reads inside this context need
// read-after-write consistency and must go to the write pool.
const UseMasterDBKey contextKey = "useMasterDB"
