// Package nattraversal implements GIST's NAT-Traversal fix-up: a GIST
// node sitting on a NAT inserts a NAT-Traversal object carrying the
// original MRI when it forwards a Q-mode Query outward, and consumes
// (undoes) that object on the return path so the Querier ends up with
// routing state describing its own, pre-NAT flow (§4.8).
package nattraversal

import "gist/internal/wire"

// Apply inserts a NAT-Traversal object recording preNATMRI as the
// original MRI on a Query PDU. It does not itself detect a NAT: the
// caller decides when to apply it.
//
// If the PDU already carries a NAT-Traversal object (multiple NATs on
// path), the original MRI is preserved and only NATCount increments
// (§4.8: "the number of NATs already crossed").
func Apply(pdu wire.PDU, preNATMRI wire.MRI) wire.PDU {
	existing := pdu.Find(wire.TypeNATTraversal)
	if nt, ok := existing.(wire.NATTraversal); ok {
		nt.NATCount++
		return replaceObject(pdu, nt)
	}

	nt := wire.NATTraversal{OriginalMRI: preNATMRI, NATCount: 1}
	out := pdu
	out.Objects = append(append([]wire.Object(nil), pdu.Objects...), nt)
	return out
}

// Undo reverses a fix-up on the return path: it restores the PDU's MRI
// to the original, pre-NAT MRI recorded in the NAT-Traversal object and
// decrements NATCount, stripping the object entirely once the last NAT
// on the path has undone its own rewrite (§4.8: "intermediaries use the
// echoed NAT-Traversal to identify and undo their own address
// translation").
func Undo(pdu wire.PDU) (wire.PDU, bool) {
	nt, ok := pdu.Find(wire.TypeNATTraversal).(wire.NATTraversal)
	if !ok {
		return pdu, false
	}

	out := replaceMRI(pdu, nt.OriginalMRI)
	if nt.NATCount <= 1 {
		out = removeObject(out, wire.TypeNATTraversal)
		return out, true
	}
	nt.NATCount--
	out = replaceObject(out, nt)
	return out, true
}

func replaceObject(pdu wire.PDU, o wire.Object) wire.PDU {
	objs := make([]wire.Object, 0, len(pdu.Objects))
	replaced := false
	for _, existing := range pdu.Objects {
		if existing.ObjectType() == o.ObjectType() {
			objs = append(objs, o)
			replaced = true
			continue
		}
		objs = append(objs, existing)
	}
	if !replaced {
		objs = append(objs, o)
	}
	out := pdu
	out.Objects = objs
	return out
}

func replaceMRI(pdu wire.PDU, mri wire.MRI) wire.PDU {
	return replaceObject(pdu, mri)
}

func removeObject(pdu wire.PDU, t wire.ObjectType) wire.PDU {
	objs := make([]wire.Object, 0, len(pdu.Objects))
	for _, o := range pdu.Objects {
		if o.ObjectType() == t {
			continue
		}
		objs = append(objs, o)
	}
	out := pdu
	out.Objects = objs
	return out
}
