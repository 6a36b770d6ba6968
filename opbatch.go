package bucketstore

import "context"

// BatchOp names the operation a BatchRequest performs.
type BatchOp int

const (
	BatchPut BatchOp = iota
	BatchGet
	BatchDel
)

// BatchRequest is one operation in an atomic Batch call.
type BatchRequest struct {
	Op     BatchOp
	Bucket string
	Key    string
	Value  map[string]any
	Put    PutOptions
	Get    GetOptions
	Del    DelOptions
}

// BatchResult is the outcome of one BatchRequest. At most one of
// Etag/Object is populated, matching the request's Op (neither for a
// delete). If any request in the sequence fails, Batch returns that error
// and no results, and the whole batch is rolled back.
type BatchResult struct {
	Etag   string
	Object *Object
}

// Batch runs requests in order inside a single transaction: any failure
// aborts and rolls back the entire sequence, so batch semantics are
// all-or-nothing rather than best-effort.
func (db *DB) Batch(ctx context.Context, requests []BatchRequest) ([]BatchResult, error) {
	results := make([]BatchResult, len(requests))
	_, err := db.transact(ctx, "Batch", "", "", func(session *Request) error {
		for i, req := range requests {
			r := db.newRequest(ctx, session.tx, req.Bucket, req.Key)
			r.log = withOp(db.log, "Batch", req.Bucket)

			switch req.Op {
			case BatchPut:
				etag, err := doPut(r, req.Value, req.Put)
				if err != nil {
					return err
				}
				results[i].Etag = etag
			case BatchGet:
				obj, err := doGet(r, req.Get)
				if err != nil {
					return err
				}
				results[i].Object = obj
			case BatchDel:
				if err := doDel(r, req.Del); err != nil {
					return err
				}
			}
			if r.written {
				session.markWritten()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
