// Package activity reads the untyped JSON documents exchanged between
// federated instances.
//
// An Envelope wraps the raw bytes of an incoming activity and reads fields
// on demand, so one document can be tried against many handler shapes
// without decoding it into a concrete type first. References such as
// actor, object or attributedTo may be a bare URI string or an embedded
// object carrying an id; RefID accepts both.
//
//	env, err := activity.Parse(body)
//	if err != nil {
//	    return err
//	}
//
//	actorID, ok := env.ActorID()
//
// The typed shapes (Actor, Object) are used to materialize
// remote objects and to render local actor documents.
package activity
